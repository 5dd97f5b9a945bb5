package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchLocationIdentityWithinBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := s.NewBatch()

	bid := strp("ab12cd")
	loc1, err := b.GetOrCreateLocation(ctx, bid, "/lib/libc.so", 0x10, nil, nil)
	require.NoError(t, err)

	loc2, err := b.GetOrCreateLocation(ctx, bid, "/lib/libc.so", 0x10, nil, nil)
	require.NoError(t, err)

	assert.Same(t, loc1, loc2, "same identity in one batch must share one instance")
}

func TestBatchLocationIdentityConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := s.NewBatch()

	const workers = 8
	results := make([]any, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loc, err := b.GetOrCreateLocation(ctx, strp("ab"), "/lib/libc.so", 7, nil, nil)
			require.NoError(t, err)
			results[i] = loc
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i], "worker %d got a different instance", i)
	}
}

func TestBatchSymbolIdentityWithinBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := s.NewBatch()

	sym1, err := b.GetOrCreateSymbol(ctx, "malloc", "libc.so")
	require.NoError(t, err)
	sym2, err := b.GetOrCreateSymbol(ctx, "malloc", "libc.so")
	require.NoError(t, err)

	assert.Same(t, sym1, sym2)
}

func TestBatchesAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b1 := s.NewBatch()
	b2 := s.NewBatch()
	assert.NotEqual(t, b1.ID(), b2.ID())

	loc1, err := b1.GetOrCreateLocation(ctx, strp("ab"), "/lib/libc.so", 1, nil, nil)
	require.NoError(t, err)
	loc2, err := b2.GetOrCreateLocation(ctx, strp("ab"), "/lib/libc.so", 1, nil, nil)
	require.NoError(t, err)

	// Different instances across batches, but the same backing row.
	assert.NotSame(t, loc1, loc2)
	assert.Equal(t, loc1.ID, loc2.ID)
}

func TestBatchSeesRowsCommittedByOtherBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := s.NewBatch()
	created, err := first.GetOrCreateSymbol(ctx, "free", "libc.so")
	require.NoError(t, err)

	second := s.NewBatch()
	found, err := second.GetOrCreateSymbol(ctx, "free", "libc.so")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}
