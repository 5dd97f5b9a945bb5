// Package report defines the raw crash-report shape and everything that runs
// before a report is trusted: the JIT repair pass, strict schema validation,
// and crash-thread selection.
//
// Raw types exist only transiently during ingestion. Optional fields are
// pointers because field presence matters: a frame without a function name is
// not the same as a frame with an empty one, and the hasher's key-strategy
// selection depends on the difference.
package report

import (
	"encoding/json"
	"fmt"
)

// Sentinel strings used by the repair pass. UnknownFunction is the
// placeholder some unwinders emit for unresolvable names; it counts as
// missing for repair but as present for hashing. The two checks are kept
// separate on purpose.
const (
	UnknownFunction   = "??"
	AnonymousFunction = "anonymous function"
	UnknownFilename   = "unknown filename"
)

// RawFrame is one stack frame as supplied by the reporter.
type RawFrame struct {
	Address       *uint64 `json:"address,omitempty"`
	BuildIDOffset *uint64 `json:"build_id_offset,omitempty"`
	FileName      *string `json:"file_name,omitempty"`
	BuildID       *string `json:"build_id,omitempty"`
	Fingerprint   *string `json:"fingerprint,omitempty"`
	FunctionName  *string `json:"function_name,omitempty"`
}

// HasFunctionName reports whether the frame carries a usable function name:
// present and not the unknown-function placeholder.
func (f *RawFrame) HasFunctionName() bool {
	return f.FunctionName != nil && *f.FunctionName != UnknownFunction
}

// RawThread is one thread of the reported stacktrace.
type RawThread struct {
	CrashThread bool        `json:"crash_thread,omitempty"`
	Frames      []*RawFrame `json:"frames,omitempty"`
}

// RawUser carries the reporter's ownership/locality flags.
type RawUser struct {
	Root  *bool `json:"root,omitempty"`
	Local *bool `json:"local,omitempty"`
}

// RawReport is the incoming crash report.
type RawReport struct {
	Type       string       `json:"type,omitempty"`
	Signal     *int64       `json:"signal,omitempty"`
	Component  *string      `json:"component,omitempty"`
	Executable *string      `json:"executable,omitempty"`
	User       *RawUser     `json:"user,omitempty"`
	Stacktrace []*RawThread `json:"stacktrace,omitempty"`
}

// Parse decodes a raw report from JSON. Decoding failures are schema errors:
// the payload is rejected as a whole.
func Parse(data []byte) (*RawReport, error) {
	var r RawReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &SchemaError{Violations: []ValidationError{{
			Field:   "",
			Message: fmt.Sprintf("malformed report: %v", err),
			Code:    ErrMalformedReport,
		}}}
	}
	return &r, nil
}

// CrashThread returns the single thread marked as the crash thread.
// Fails with NO_CRASH_THREAD if none is marked and MULTIPLE_CRASH_THREADS if
// more than one is.
func CrashThread(threads []*RawThread) (*RawThread, error) {
	var crash *RawThread
	for _, t := range threads {
		if t == nil || !t.CrashThread {
			continue
		}
		if crash != nil {
			return nil, &ProcessError{
				Code:    ErrCodeMultipleCrashThreads,
				Message: "multiple crash threads found",
			}
		}
		crash = t
	}
	if crash == nil {
		return nil, &ProcessError{
			Code:    ErrCodeNoCrashThread,
			Message: "no crash thread found",
		}
	}
	return crash, nil
}
