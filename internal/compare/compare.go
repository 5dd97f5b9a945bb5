// Package compare builds canonical crash-thread stacks from stored
// backtraces and measures distances between them through a pluggable
// stack tool.
package compare

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"coretriage/internal/config"
	"coretriage/internal/report"
	"coretriage/internal/store"
)

// StackFrame is one frame of a canonical stack. A frame without a symbol
// renders its function as "??"; absent source information stays zero-valued.
type StackFrame struct {
	Function   string
	Path       string
	SourceFile string
	SourceLine int64
	Address    int64
	Order      int64
}

// Stack is the canonical crash-thread stack handed to the stack tool.
type Stack struct {
	Frames []StackFrame
}

// StackTool is the black-box distance and normalization engine.
type StackTool interface {
	// Distance returns a non-negative dissimilarity, zero for identical
	// stacks. Must be symmetric.
	Distance(a, b Stack) (float64, error)

	// Normalize strips noise frames (unwinder artifacts, signal handlers)
	// before comparison.
	Normalize(s Stack) Stack

	// CrashFrame picks the frame the crash is attributed to.
	CrashFrame(s Stack) (StackFrame, bool)
}

// Comparator compares stored reports by their canonical stacks.
type Comparator struct {
	store *store.Store
	tool  StackTool
	cfg   *config.Config
	log   *zap.Logger
}

func New(s *store.Store, tool StackTool, cfg *config.Config, log *zap.Logger) *Comparator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Comparator{store: s, tool: tool, cfg: cfg, log: log}
}

// BuildStack loads the crash thread of the backtrace as a canonical stack,
// normalized when configured. A backtrace that cannot yield a usable stack
// degrades to (nil, nil): no threads, no crash thread, or a single frame
// resolved to "anonymous function" in "unknown filename".
func (c *Comparator) BuildStack(ctx context.Context, backtraceID int64) (*Stack, error) {
	threads, err := c.store.Threads(ctx, backtraceID)
	if err != nil {
		return nil, err
	}
	if len(threads) == 0 {
		c.log.Warn("backtrace has no threads", zap.Int64("backtrace_id", backtraceID))
		return nil, nil
	}

	for _, thread := range threads {
		if !thread.CrashThread {
			continue
		}

		rows, err := c.store.ThreadStack(ctx, thread.ID)
		if err != nil {
			return nil, err
		}
		if singleBadFrame(rows) {
			c.log.Warn("backtrace has only one bad frame",
				zap.Int64("backtrace_id", backtraceID))
			return nil, nil
		}

		stack := &Stack{Frames: make([]StackFrame, 0, len(rows))}
		for _, row := range rows {
			frame := StackFrame{
				Function: report.UnknownFunction,
				Path:     row.Path,
				Address:  row.Offset,
				Order:    row.Order,
			}
			if row.FunctionName != nil {
				frame.Function = *row.FunctionName
			}
			if row.SourcePath != nil {
				frame.SourceFile = *row.SourcePath
			}
			if row.LineNumber != nil {
				frame.SourceLine = *row.LineNumber
			}
			stack.Frames = append(stack.Frames, frame)
		}

		if c.cfg.Processing.Normalize {
			normalized := c.tool.Normalize(*stack)
			stack = &normalized
		}
		return stack, nil
	}

	c.log.Warn("backtrace has no crash thread", zap.Int64("backtrace_id", backtraceID))
	return nil, nil
}

// Compare measures the distance between the stored stacks of two reports.
// Either report lacking a usable stack is an error, not a zero distance.
func (c *Comparator) Compare(ctx context.Context, reportA, reportB int64) (float64, error) {
	stackA, err := c.reportStack(ctx, reportA)
	if err != nil {
		return 0, err
	}
	stackB, err := c.reportStack(ctx, reportB)
	if err != nil {
		return 0, err
	}

	return c.tool.Distance(*stackA, *stackB)
}

// CrashFunction returns the function name of the crash frame of the
// backtrace's canonical stack. The second result is false when the backtrace
// has no usable stack or the tool cannot pick a crash frame.
func (c *Comparator) CrashFunction(ctx context.Context, backtraceID int64) (string, bool, error) {
	stack, err := c.BuildStack(ctx, backtraceID)
	if err != nil {
		return "", false, err
	}
	if stack == nil {
		return "", false, nil
	}

	frame, ok := c.tool.CrashFrame(*stack)
	if !ok {
		return "", false, nil
	}
	return frame.Function, true, nil
}

// reportStack builds the canonical stack of the report's first backtrace.
func (c *Comparator) reportStack(ctx context.Context, reportID int64) (*Stack, error) {
	bts, err := c.store.Backtraces(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if len(bts) == 0 {
		c.log.Warn("report has no backtraces", zap.Int64("report_id", reportID))
		return nil, noUsableStack(reportID)
	}

	stack, err := c.BuildStack(ctx, bts[0].ID)
	if err != nil {
		return nil, err
	}
	if stack == nil {
		return nil, noUsableStack(reportID)
	}
	return stack, nil
}

// singleBadFrame reports the degenerate JIT-repair artifact: a thread whose
// only frame resolved to the repair placeholders.
func singleBadFrame(rows []store.StackRow) bool {
	if len(rows) != 1 {
		return false
	}
	row := rows[0]
	return row.FunctionName != nil &&
		*row.FunctionName == report.AnonymousFunction &&
		row.NormalizedPath != nil &&
		*row.NormalizedPath == report.UnknownFilename
}

func noUsableStack(reportID int64) error {
	return &report.ProcessError{
		Code:    report.ErrCodeNoUsableStack,
		Message: fmt.Sprintf("report %d has no usable stack", reportID),
	}
}
