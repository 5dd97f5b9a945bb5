package model

// FrameStride is the gap between consecutive non-inlined frame order values.
// Inlined frames are inserted at originalOrder - depth, so the stride bounds
// how many inlined calls can be expanded per frame without renumbering.
const FrameStride = 10

// Symbol is a deduplicated function symbol.
// Identity is (Name, NormalizedPath); a Symbol is never mutated after
// creation except for filling in NiceName once demangling succeeds.
type Symbol struct {
	ID             int64
	Name           string
	NiceName       *string
	NormalizedPath string
}

// SymbolSource is a deduplicated code location inside a binary.
// Identity is (BuildID-or-unknown, Path, Offset). Symbol, SourcePath and
// LineNumber start out nil and are filled in by retracing. RetraceFailCount
// counts failed resolution attempts so an external scheduler can apply
// retry/backoff without re-deriving which locations failed.
type SymbolSource struct {
	ID               int64
	SymbolID         *int64
	BuildID          *string
	Path             string
	Offset           int64
	Hash             *string
	SourcePath       *string
	LineNumber       *int64
	RetraceFailCount int64
}

// Resolved reports whether the location needs no further retracing.
func (s *SymbolSource) Resolved() bool {
	return s.SymbolID != nil && s.SourcePath != nil && s.LineNumber != nil
}

// Inlined reports whether this is a synthetic location for an inlined call.
func (s *SymbolSource) Inlined() bool {
	return s.Offset < 0
}

// Backtrace is the stored stack capture of one report.
type Backtrace struct {
	ID       int64
	ReportID int64
}

// BtHash is one fingerprint of a backtrace, tagged by the key strategy that
// produced it.
type BtHash struct {
	BacktraceID int64
	Type        string
	Hash        string
}

// Thread is one thread of a stored backtrace.
type Thread struct {
	ID          int64
	BacktraceID int64
	Number      int64
	CrashThread bool
}

// Frame is one stored stack frame. Order sequences frames within a thread;
// Inlined marks synthetic frames produced by inline expansion.
type Frame struct {
	ID             int64
	ThreadID       int64
	SymbolSourceID int64
	Order          int64
	Inlined        bool
}
