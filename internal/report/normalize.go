package report

import "strings"

// NormalizeJIT repairs frames around JIT-compiled code before strict
// validation. Frames calling JIT compiled functions usually carry neither a
// function name nor a file name, which would get the whole report rejected
// even though the stack above the unattributable region is still useful for
// grouping.
//
// Per thread, in frame order: a frame whose function name contains "jit"
// (case-insensitive) and which has a file name establishes that file as the
// thread's JIT source. Any later frame missing a file name inherits it, and
// if such a frame also lacks a usable function name (absent or the "??"
// placeholder) it becomes "anonymous function". After the scan, a last frame
// still missing a file name becomes "unknown filename", with the same
// function-name substitution.
//
// Idempotent: repairing an already-repaired report changes nothing.
func NormalizeJIT(r *RawReport) {
	for _, thread := range r.Stacktrace {
		if thread == nil {
			continue
		}

		var jitFile *string
		for _, frame := range thread.Frames {
			if frame == nil {
				continue
			}

			if frame.FileName != nil && frame.FunctionName != nil &&
				strings.Contains(strings.ToLower(*frame.FunctionName), "jit") {
				jitFile = frame.FileName
			}

			if frame.FileName == nil && jitFile != nil {
				frame.FileName = strptr(*jitFile)
				if frame.FunctionName == nil || *frame.FunctionName == UnknownFunction {
					frame.FunctionName = strptr(AnonymousFunction)
				}
			}
		}

		if len(thread.Frames) == 0 {
			continue
		}
		last := thread.Frames[len(thread.Frames)-1]
		if last == nil {
			continue
		}
		if last.FileName == nil {
			last.FileName = strptr(UnknownFilename)
		}
		if last.FunctionName == nil || *last.FunctionName == UnknownFunction {
			last.FunctionName = strptr(AnonymousFunction)
		}
	}
}

func strptr(s string) *string {
	return &s
}
