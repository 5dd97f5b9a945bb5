// Package testutil provides canned service implementations for tests that
// exercise the retracer and comparator without real binaries on disk.
package testutil

import (
	"fmt"

	"coretriage/internal/compare"
	"coretriage/internal/retrace"
)

// CannedResolver serves pre-recorded base addresses and address
// resolutions. Lookups for anything not recorded fail, matching how a real
// resolver behaves against a missing or stripped binary.
type CannedResolver struct {
	// Bases maps binary path to load base.
	Bases map[string]uint64
	// Lines maps binary path and absolute address to resolutions,
	// innermost first.
	Lines map[string]map[uint64][]retrace.SourceLine

	// Calls records every Addr2Line invocation.
	Calls []string
}

func (r *CannedResolver) BaseAddress(binary string) (uint64, error) {
	base, ok := r.Bases[binary]
	if !ok {
		return 0, fmt.Errorf("no base address for %s", binary)
	}
	return base, nil
}

func (r *CannedResolver) Addr2Line(binary string, addr uint64, debugRoot string) ([]retrace.SourceLine, error) {
	r.Calls = append(r.Calls, fmt.Sprintf("%s+%#x", binary, addr))

	byAddr, ok := r.Lines[binary]
	if !ok {
		return nil, fmt.Errorf("no debug info for %s", binary)
	}
	lines, ok := byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("address %#x not in %s", addr, binary)
	}
	return lines, nil
}

// CannedDemangler maps mangled names to nice names; unknown names pass
// through unchanged.
type CannedDemangler struct {
	Names map[string]string
}

func (d *CannedDemangler) Demangle(name string) (string, error) {
	if nice, ok := d.Names[name]; ok {
		return nice, nil
	}
	return name, nil
}

// FixedStackTool implements compare.StackTool with transparent behavior:
// distance is the fraction of positions whose function names differ (plus
// the length difference), normalization is the identity, and the crash frame
// is the first frame.
type FixedStackTool struct{}

func (FixedStackTool) Distance(a, b compare.Stack) (float64, error) {
	longer, shorter := a.Frames, b.Frames
	if len(shorter) > len(longer) {
		longer, shorter = shorter, longer
	}
	if len(longer) == 0 {
		return 0, nil
	}

	diff := len(longer) - len(shorter)
	for i := range shorter {
		if shorter[i].Function != longer[i].Function {
			diff++
		}
	}
	return float64(diff) / float64(len(longer)), nil
}

func (FixedStackTool) Normalize(s compare.Stack) compare.Stack {
	return s
}

func (FixedStackTool) CrashFrame(s compare.Stack) (compare.StackFrame, bool) {
	if len(s.Frames) == 0 {
		return compare.StackFrame{}, false
	}
	return s.Frames[0], true
}
