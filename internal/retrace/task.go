// Package retrace resolves stored locations against unpacked debug
// packages: source file and line for each location, symbols where the
// reporter had none, and synthetic frames for functions the compiler
// inlined away.
package retrace

import (
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coretriage/internal/model"
)

// Package is one unpacked package on disk. An empty UnpackedPath means the
// package could not be fetched or unpacked; work against it is skipped and
// counted as failed.
type Package struct {
	Name         string
	UnpackedPath string
}

// PackageWork pairs a binary package with the locations whose paths it owns.
type PackageWork struct {
	Pkg       Package
	Locations []*model.SymbolSource
}

// Task is one unit of retracing: a debuginfo package, an optional source
// package, and the binary packages grouped with their locations. Tasks for
// distinct packages touch disjoint location sets and may run concurrently.
type Task struct {
	ID        uuid.UUID
	Debuginfo Package
	Source    *Package
	Binary    []PackageWork
}

// NewTask allocates a task with a fresh ID.
func NewTask(debuginfo Package, source *Package, binary []PackageWork) *Task {
	return &Task{
		ID:        uuid.Must(uuid.NewV7()),
		Debuginfo: debuginfo,
		Source:    source,
		Binary:    binary,
	}
}

// Cleanup removes every unpacked path the task references. Removal failures
// are logged and skipped; cleanup always visits all paths.
func (t *Task) Cleanup(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	paths := []string{t.Debuginfo.UnpackedPath}
	if t.Source != nil {
		paths = append(paths, t.Source.UnpackedPath)
	}
	for _, work := range t.Binary {
		paths = append(paths, work.Pkg.UnpackedPath)
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			log.Warn("failed to remove unpacked package",
				zap.String("task", t.ID.String()),
				zap.String("path", p),
				zap.Error(err))
		}
	}
}
