package ingest_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coretriage/internal/config"
	"coretriage/internal/hash"
	"coretriage/internal/ingest"
	"coretriage/internal/report"
	"coretriage/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "triage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func u64(v uint64) *uint64 { return &v }
func i64(v int64) *int64   { return &v }
func strp(s string) *string { return &s }

func sampleReport() *report.RawReport {
	return &report.RawReport{
		Type:       "core",
		Signal:     i64(6),
		Component:  strp("glibc"),
		Executable: strp("/usr/bin/crasher"),
		Stacktrace: []*report.RawThread{
			{
				CrashThread: true,
				Frames: []*report.RawFrame{
					{
						Address:       u64(0x7f10),
						BuildIDOffset: u64(0x10),
						BuildID:       strp("ab12cd34"),
						FileName:      strp("/lib64/libc.so.6"),
						FunctionName:  strp("raise"),
					},
					{
						Address:       u64(0x7f20),
						BuildIDOffset: u64(0x20),
						BuildID:       strp("ab12cd34"),
						FileName:      strp("/lib64/libc.so.6"),
						FunctionName:  strp("abort"),
					},
				},
			},
			{
				Frames: []*report.RawFrame{
					{
						Address:       u64(0x9000),
						BuildIDOffset: u64(0x30),
						BuildID:       strp("ef56"),
						FileName:      strp("/usr/lib64/libpthread.so.0"),
						FunctionName:  strp("start_thread"),
					},
				},
			},
		},
	}
}

func TestSaveStoresSkeleton(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ing := ingest.New(s, config.Default(), nil)

	fps, short, err := ing.Save(ctx, 1, sampleReport())
	require.NoError(t, err)
	require.Len(t, fps, 2)
	assert.Equal(t, hash.StrategyFunctionName, fps[0].Strategy)
	assert.Len(t, short, 64)

	bts, err := s.Backtraces(ctx, 1)
	require.NoError(t, err)
	require.Len(t, bts, 1)

	hashes, err := s.BacktraceHashes(ctx, bts[0].ID)
	require.NoError(t, err)
	assert.Len(t, hashes, 2, "function_name and build_id_offset strategies apply")

	threads, err := s.Threads(ctx, bts[0].ID)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.True(t, threads[0].CrashThread)
	assert.Equal(t, int64(1), threads[0].Number)
	assert.False(t, threads[1].CrashThread)

	frames, err := s.ThreadFrames(ctx, threads[0].ID)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, int64(10), frames[0].Order)
	assert.Equal(t, int64(20), frames[1].Order)

	count, err := s.ExecutableCount(ctx, 1, "/usr/bin/crasher")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSaveDeduplicatesLocations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ing := ingest.New(s, config.Default(), nil)

	r := sampleReport()
	// Both crash-thread frames hit the same location.
	r.Stacktrace[0].Frames[1] = r.Stacktrace[0].Frames[0]

	_, _, err := ing.Save(ctx, 1, r)
	require.NoError(t, err)

	loc, err := s.LocationByKey(ctx, strp("ab12cd34"), "/lib64/libc.so.6", 0x10)
	require.NoError(t, err)
	require.NotNil(t, loc)

	frames, err := s.FramesByLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Len(t, frames, 2, "two frames share one location row")
}

func TestSaveSecondOccurrenceSkipsBacktrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ing := ingest.New(s, config.Default(), nil)

	_, firstShort, err := ing.Save(ctx, 1, sampleReport())
	require.NoError(t, err)
	_, secondShort, err := ing.Save(ctx, 1, sampleReport())
	require.NoError(t, err)
	assert.Equal(t, firstShort, secondShort)

	bts, err := s.Backtraces(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, bts, 1, "backtrace stored once")

	count, err := s.ExecutableCount(ctx, 1, "/usr/bin/crasher")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "executable count grows per occurrence")
}

func TestSaveRejectsUnfingerprintableReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ing := ingest.New(s, config.Default(), nil)

	r := sampleReport()
	for _, th := range r.Stacktrace {
		for _, f := range th.Frames {
			f.FunctionName = nil
			f.Fingerprint = nil
			f.BuildIDOffset = nil
		}
	}

	_, _, err := ing.Save(ctx, 1, r)
	require.Error(t, err)
	assert.True(t, report.IsNoUsableHashKey(err))

	has, err := s.HasBacktrace(ctx, 1)
	require.NoError(t, err)
	assert.False(t, has, "nothing written for a rejected report")
}

func TestSaveSkipsSymbolForUnknownFunction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ing := ingest.New(s, config.Default(), nil)

	r := sampleReport()
	r.Stacktrace[0].Frames[0].FunctionName = strp(report.UnknownFunction)

	_, _, err := ing.Save(ctx, 1, r)
	require.NoError(t, err)

	loc, err := s.LocationByKey(ctx, strp("ab12cd34"), "/lib64/libc.so.6", 0x10)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Nil(t, loc.SymbolID, "placeholder name does not create a symbol")

	sym, err := s.SymbolByNamePath(ctx, "abort", "libc.so")
	require.NoError(t, err)
	require.NotNil(t, sym, "real names still get symbols")
}
