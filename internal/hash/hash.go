// Package hash computes crash-report fingerprints: the full per-strategy
// backtrace hashes used for deduplication, and the bounded crash-thread
// "short hash" used for rough in-memory grouping.
//
// A fingerprint is a domain-separated SHA-256 over a deterministic text
// rendering of the stack. Every line is NFC-normalized before digesting so
// the same symbol encoded differently still groups identically.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"coretriage/internal/report"
)

// Domain prefixes for content-addressed fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainBacktrace = "coretriage/backtrace/v1"
	DomainShort     = "coretriage/shorthash/v1"
)

// Strategy names the frame key a fingerprint was computed from.
type Strategy string

const (
	StrategyFunctionName  Strategy = "function_name"
	StrategyFingerprint   Strategy = "fingerprint"
	StrategyBuildIDOffset Strategy = "build_id_offset"
)

// strategies is the fixed preference order.
var strategies = []Strategy{StrategyFunctionName, StrategyFingerprint, StrategyBuildIDOffset}

// Fingerprint is one backtrace hash tagged by the strategy that produced it.
type Fingerprint struct {
	Strategy Strategy `json:"strategy"`
	Hash     string   `json:"hash"`
}

// Backtrace computes every usable fingerprint of a repaired, validated
// report. A strategy is usable only if every frame in every thread carries
// its key. Validation guarantees at least one strategy survives the repair
// pass, so an empty result is a defensive invariant violation: the report
// must be rejected, never stored unfingerprinted.
func Backtrace(r *report.RawReport) ([]Fingerprint, error) {
	var result []Fingerprint

	for _, strategy := range strategies {
		if !usable(r, strategy) {
			continue
		}
		result = append(result, Fingerprint{
			Strategy: strategy,
			Hash:     hashLines(DomainBacktrace, backtraceLines(r, strategy)),
		})
	}

	if len(result) == 0 {
		return nil, &report.ProcessError{
			Code:    report.ErrCodeNoUsableHashKey,
			Message: "unable to get backtrace hash",
		}
	}

	return result, nil
}

// Short computes the bounded grouping hash from the crash thread only. The
// single highest-precedence key uniformly present across the crash thread's
// frames is used, falling back to build_id_offset. At most maxFrames frames
// from the top of the stack contribute.
func Short(r *report.RawReport, maxFrames int) (string, error) {
	crash, err := report.CrashThread(r.Stacktrace)
	if err != nil {
		return "", err
	}

	strategy := StrategyBuildIDOffset
	for _, s := range strategies[:2] {
		if threadUsable(crash, s) {
			strategy = s
			break
		}
	}

	lines := []string{deref(r.Component)}
	for i, f := range crash.Frames {
		if i >= maxFrames {
			break
		}
		key, _ := frameKey(f, strategy)
		lines = append(lines, fmt.Sprintf("%s @ %s", key, deref(f.FileName)))
	}

	return hashLines(DomainShort, lines), nil
}

// backtraceLines renders the full stack for one strategy: a header line per
// thread, then one line per frame in original order.
func backtraceLines(r *report.RawReport, strategy Strategy) []string {
	var lines []string
	for _, thread := range r.Stacktrace {
		if thread.CrashThread {
			lines = append(lines, "Crash Thread")
		} else {
			lines = append(lines, "Thread")
		}
		for _, f := range thread.Frames {
			key, _ := frameKey(f, strategy)
			lines = append(lines, fmt.Sprintf("  %s @ %s (%s)",
				key, deref(f.FileName), buildID(f)))
		}
	}
	return lines
}

// usable reports whether every frame of every thread carries the key.
func usable(r *report.RawReport, s Strategy) bool {
	for _, thread := range r.Stacktrace {
		if !threadUsable(thread, s) {
			return false
		}
	}
	return true
}

func threadUsable(t *report.RawThread, s Strategy) bool {
	for _, f := range t.Frames {
		if _, ok := frameKey(f, s); !ok {
			return false
		}
	}
	return true
}

// frameKey extracts the strategy's key value from a frame. Presence is what
// counts: the "??" placeholder is still a present function name here.
func frameKey(f *report.RawFrame, s Strategy) (string, bool) {
	switch s {
	case StrategyFunctionName:
		if f.FunctionName == nil {
			return "", false
		}
		return *f.FunctionName, true
	case StrategyFingerprint:
		if f.Fingerprint == nil {
			return "", false
		}
		return *f.Fingerprint, true
	case StrategyBuildIDOffset:
		if f.BuildIDOffset == nil {
			return "", false
		}
		return strconv.FormatUint(*f.BuildIDOffset, 10), true
	}
	return "", false
}

func buildID(f *report.RawFrame) string {
	if f.BuildID == nil {
		return "null"
	}
	return *f.BuildID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// hashLines digests NFC-normalized lines with domain separation:
// SHA256(domain + 0x00 + lines joined by newline). The null byte prevents
// domain/data boundary ambiguity.
func hashLines(domain string, lines []string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write([]byte(render(lines)))
	return hex.EncodeToString(h.Sum(nil))
}

// render produces the canonical text representation fed to the digest.
func render(lines []string) string {
	normalized := make([]string, len(lines))
	for i, line := range lines {
		normalized[i] = norm.NFC.String(line)
	}
	return strings.Join(normalized, "\n")
}
