package retrace

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"coretriage/internal/model"
	"coretriage/internal/store"
)

// Retracer resolves a task's locations against its unpacked packages.
type Retracer struct {
	store     *store.Store
	resolver  Resolver
	demangler Demangler
	log       *zap.Logger
}

func New(s *store.Store, resolver Resolver, demangler Demangler, log *zap.Logger) *Retracer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Retracer{store: s, resolver: resolver, demangler: demangler, log: log}
}

// Run processes every location of the task. A location that cannot be
// resolved gets its fail counter bumped and is skipped; resolution failures
// never abort the task. Store write errors and context cancellation do.
// Unpacked packages are removed when Run returns, on every exit path.
func (r *Retracer) Run(ctx context.Context, task *Task) error {
	defer task.Cleanup(r.log)

	var debugRoot string
	if task.Debuginfo.UnpackedPath != "" {
		debugRoot = filepath.Join(task.Debuginfo.UnpackedPath, "usr", "lib", "debug")
	}

	batch := r.store.NewBatch()
	resolved, failed := 0, 0

	for _, work := range task.Binary {
		for _, loc := range work.Locations {
			if err := ctx.Err(); err != nil {
				return err
			}

			if work.Pkg.UnpackedPath == "" || debugRoot == "" {
				if err := r.fail(ctx, loc, "package not unpacked"); err != nil {
					return err
				}
				failed++
				continue
			}

			binary := filepath.Join(work.Pkg.UnpackedPath, strings.TrimPrefix(loc.Path, "/"))

			base, err := r.resolver.BaseAddress(binary)
			if err != nil {
				if err := r.fail(ctx, loc, err.Error()); err != nil {
					return err
				}
				failed++
				continue
			}

			lines, err := r.resolver.Addr2Line(binary, base+uint64(loc.Offset), debugRoot)
			if err != nil || len(lines) == 0 {
				if err := r.fail(ctx, loc, "address did not resolve"); err != nil {
					return err
				}
				failed++
				continue
			}

			if err := r.apply(ctx, batch, loc, lines); err != nil {
				return err
			}
			resolved++
		}
	}

	r.log.Info("retrace task finished",
		zap.String("task", task.ID.String()),
		zap.Int("resolved", resolved),
		zap.Int("failed", failed))

	return nil
}

// fail records one resolution failure on the location's counter.
func (r *Retracer) fail(ctx context.Context, loc *model.SymbolSource, reason string) error {
	r.log.Debug("retrace failed",
		zap.Int64("location_id", loc.ID),
		zap.String("path", loc.Path),
		zap.String("reason", reason))
	return r.store.IncrementRetraceFail(ctx, loc.ID)
}

// apply writes one location's resolution: synthetic locations and frames for
// each inlined entry, then symbol, source file and line on the location
// itself from the outermost entry.
func (r *Retracer) apply(ctx context.Context, batch *store.Batch, loc *model.SymbolSource, lines []SourceLine) error {
	// Outermost-first; entries are consumed from the end so the deepest
	// inlined call is expanded closest to the original frame.
	entries := make([]SourceLine, len(lines))
	for i, l := range lines {
		entries[len(lines)-1-i] = l
	}

	depth := int64(0)
	for len(entries) > 1 {
		inner := entries[len(entries)-1]
		entries = entries[:len(entries)-1]
		depth++

		if err := r.expandInlined(ctx, batch, loc, inner, depth); err != nil {
			return err
		}
	}

	final := entries[0]
	sym, err := batch.GetOrCreateSymbol(ctx, final.Function, model.NormalizePath(loc.Path))
	if err != nil {
		return fmt.Errorf("symbol %q: %w", final.Function, err)
	}
	if err := r.demangle(ctx, sym); err != nil {
		return err
	}

	return r.store.UpdateLocationResolution(ctx, loc.ID, sym.ID, final.File, final.Line)
}

// expandInlined materializes one inlined call: a synthetic location keyed by
// the negated source line, plus an inlined frame above every frame that
// references the original location.
func (r *Retracer) expandInlined(ctx context.Context, batch *store.Batch, loc *model.SymbolSource, entry SourceLine, depth int64) error {
	sym, err := batch.GetOrCreateSymbol(ctx, entry.Function, model.NormalizePath(loc.Path))
	if err != nil {
		return fmt.Errorf("inlined symbol %q: %w", entry.Function, err)
	}

	synth, err := batch.GetOrCreateLocation(ctx, loc.BuildID, loc.Path, -entry.Line, &sym.ID, nil)
	if err != nil {
		return fmt.Errorf("inlined location %s:%d: %w", loc.Path, entry.Line, err)
	}
	if !synth.Resolved() {
		if err := r.store.UpdateLocationResolution(ctx, synth.ID, sym.ID, entry.File, entry.Line); err != nil {
			return err
		}
		synth.SymbolID = &sym.ID
		synth.SourcePath = &entry.File
		synth.LineNumber = &entry.Line
	}

	frames, err := r.store.FramesByLocation(ctx, loc.ID)
	if err != nil {
		return err
	}

	for _, frame := range frames {
		already, err := r.alreadyExpanded(ctx, frame, synth.ID, depth)
		if err != nil {
			return err
		}
		if already {
			continue
		}
		if _, err := r.store.CreateFrame(ctx, frame.ThreadID, synth.ID, frame.Order-depth, true); err != nil {
			return fmt.Errorf("inlined frame at order %d: %w", frame.Order-depth, err)
		}
	}

	return nil
}

// alreadyExpanded reports whether an inlined frame for the synthetic
// location already sits between the candidate order and the original frame.
// Re-running expansion on the same location must not duplicate frames at any
// depth.
func (r *Retracer) alreadyExpanded(ctx context.Context, frame *model.Frame, synthID, depth int64) (bool, error) {
	siblings, err := r.store.ThreadFrames(ctx, frame.ThreadID)
	if err != nil {
		return false, err
	}

	for _, f := range siblings {
		if f.Order < frame.Order-depth || f.Order >= frame.Order {
			continue
		}
		if f.Inlined && f.SymbolSourceID == synthID {
			return true, nil
		}
	}

	return false, nil
}

// demangle fills in the symbol's nice name once, when the demangled form
// differs from the raw name.
func (r *Retracer) demangle(ctx context.Context, sym *model.Symbol) error {
	if r.demangler == nil || sym.NiceName != nil {
		return nil
	}

	nice, err := r.demangler.Demangle(sym.Name)
	if err != nil {
		r.log.Debug("demangle failed",
			zap.String("symbol", sym.Name),
			zap.Error(err))
		return nil
	}
	if nice == "" || nice == sym.Name {
		return nil
	}

	if err := r.store.SetSymbolNiceName(ctx, sym.ID, nice); err != nil {
		return err
	}
	sym.NiceName = &nice
	return nil
}
