package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"coretriage/internal/model"
)

type symbolKey struct {
	name           string
	normalizedPath string
}

type locationKey struct {
	buildID string
	path    string
	offset  int64
}

// Batch is the short-lived pending-insert cache for one ingestion or retrace
// run. It guarantees that two frames in the same run resolving to the same
// identity share one instance, even before the backing rows are visible to
// other readers, and even when units of work in the run execute
// concurrently. It is not a long-lived cache layer: discard it when the run
// finishes and never share it across runs.
type Batch struct {
	id    string
	store *Store

	mu        sync.Mutex
	symbols   map[symbolKey]*model.Symbol
	locations map[locationKey]*model.SymbolSource
}

// NewBatch creates a batch scoped to one run. The ID is a UUIDv7 so batch
// identifiers sort by creation time in logs.
func (s *Store) NewBatch() *Batch {
	return &Batch{
		id:        uuid.Must(uuid.NewV7()).String(),
		store:     s,
		symbols:   make(map[symbolKey]*model.Symbol),
		locations: make(map[locationKey]*model.SymbolSource),
	}
}

// ID returns the batch identifier.
func (b *Batch) ID() string {
	return b.id
}

// GetOrCreateSymbol returns the canonical symbol for (name, normalizedPath),
// creating it if needed. Within one batch the same identity always yields
// the same *model.Symbol.
func (b *Batch) GetOrCreateSymbol(ctx context.Context, name, normalizedPath string) (*model.Symbol, error) {
	key := symbolKey{name: name, normalizedPath: normalizedPath}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sym, ok := b.symbols[key]; ok {
		return sym, nil
	}

	sym, err := b.store.SymbolByNamePath(ctx, name, normalizedPath)
	if err != nil {
		return nil, err
	}
	if sym == nil {
		sym, _, err = b.store.CreateSymbol(ctx, name, normalizedPath)
		if err != nil {
			return nil, err
		}
	}

	b.symbols[key] = sym
	return sym, nil
}

// GetOrCreateLocation returns the canonical symbol source for
// (buildID, path, offset), creating it if needed. symbolID and hash only
// apply on creation. Within one batch the same identity always yields the
// same *model.SymbolSource.
func (b *Batch) GetOrCreateLocation(ctx context.Context, buildID *string, path string, offset int64, symbolID *int64, hash *string) (*model.SymbolSource, error) {
	key := locationKey{buildID: buildIDKey(buildID), path: path, offset: offset}

	b.mu.Lock()
	defer b.mu.Unlock()

	if loc, ok := b.locations[key]; ok {
		return loc, nil
	}

	loc, err := b.store.LocationByKey(ctx, buildID, path, offset)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc, _, err = b.store.CreateLocation(ctx, buildID, path, offset, symbolID, hash)
		if err != nil {
			return nil, err
		}
	}

	b.locations[key] = loc
	return loc, nil
}
