// Package model defines the canonical data model shared by ingestion,
// retracing, and comparison: deduplicated symbols, symbol sources (resolved or
// unresolved code locations), and the stored backtrace skeleton.
//
// Canonical identities:
//   - Symbol: (name, normalized binary path), immutable once created.
//   - SymbolSource: (build id or unknown, absolute binary path, offset).
//     Offsets are normally >= 0; synthetic locations for inlined calls use
//     negative offsets derived from -source_line so they never collide with
//     the real key space.
//
// Frames within a thread are ordered by an explicit order value. Non-inlined
// frames are spaced FrameStride apart so inlined frames discovered later can
// be inserted between them without renumbering the whole thread.
package model
