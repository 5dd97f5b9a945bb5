package hash

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coretriage/internal/report"
)

type frameSpec struct {
	fn     string
	fp     string
	file   string
	bid    string
	offset uint64
}

func buildReport(component string, threads ...[]frameSpec) *report.RawReport {
	r := &report.RawReport{Component: sp(component)}
	for i, specs := range threads {
		t := &report.RawThread{CrashThread: i == len(threads)-1}
		for _, s := range specs {
			f := &report.RawFrame{Address: up(s.offset), BuildIDOffset: up(s.offset)}
			if s.fn != "" {
				f.FunctionName = sp(s.fn)
			}
			if s.fp != "" {
				f.Fingerprint = sp(s.fp)
			}
			if s.file != "" {
				f.FileName = sp(s.file)
			}
			if s.bid != "" {
				f.BuildID = sp(s.bid)
			}
			t.Frames = append(t.Frames, f)
		}
		r.Stacktrace = append(r.Stacktrace, t)
	}
	return r
}

func sp(s string) *string { return &s }
func up(v uint64) *uint64 { return &v }

func sampleReport() *report.RawReport {
	return buildReport("glibc",
		[]frameSpec{{fn: "start_thread", file: "/usr/lib64/libpthread.so.0", offset: 0x20}},
		[]frameSpec{{fn: "malloc", file: "/lib/libc.so", bid: "ab12cd34", offset: 0x10}},
	)
}

func TestBacktraceDeterminism(t *testing.T) {
	a, err := Backtrace(sampleReport())
	require.NoError(t, err)
	b, err := Backtrace(sampleReport())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	require.NotEmpty(t, a)
	assert.Len(t, a[0].Hash, 64, "SHA-256 hex is 64 characters")
}

func TestBacktraceStrategyOrder(t *testing.T) {
	r := buildReport("glibc",
		[]frameSpec{{fn: "malloc", fp: "ab12", file: "/lib/libc.so", offset: 1}},
	)

	fps, err := Backtrace(r)
	require.NoError(t, err)

	// All three keys are uniformly present, so all three strategies fire,
	// in preference order.
	require.Len(t, fps, 3)
	assert.Equal(t, StrategyFunctionName, fps[0].Strategy)
	assert.Equal(t, StrategyFingerprint, fps[1].Strategy)
	assert.Equal(t, StrategyBuildIDOffset, fps[2].Strategy)
}

func TestBacktraceStrategyNeedsEveryThread(t *testing.T) {
	r := buildReport("glibc",
		[]frameSpec{{file: "/usr/lib64/libpthread.so.0", offset: 2}}, // no name
		[]frameSpec{{fn: "malloc", file: "/lib/libc.so", offset: 1}},
	)

	fps, err := Backtrace(r)
	require.NoError(t, err)

	for _, fp := range fps {
		assert.NotEqual(t, StrategyFunctionName, fp.Strategy,
			"function_name must not be usable when any frame lacks it")
	}
	require.Len(t, fps, 1)
	assert.Equal(t, StrategyBuildIDOffset, fps[0].Strategy)
}

func TestBacktraceNoUsableKey(t *testing.T) {
	r := &report.RawReport{
		Component: sp("glibc"),
		Stacktrace: []*report.RawThread{{
			CrashThread: true,
			Frames:      []*report.RawFrame{{Address: up(1), FileName: sp("/lib/libc.so")}},
		}},
	}

	_, err := Backtrace(r)
	require.Error(t, err)
	assert.True(t, report.IsNoUsableHashKey(err))
	assert.Contains(t, err.Error(), "unable to get backtrace hash")
}

func TestBacktracePlaceholderNameCountsAsPresent(t *testing.T) {
	r := buildReport("glibc",
		[]frameSpec{{fn: "??", file: "/lib/libc.so", offset: 1}},
	)

	fps, err := Backtrace(r)
	require.NoError(t, err)
	assert.Equal(t, StrategyFunctionName, fps[0].Strategy)
}

func TestBacktraceOrderSensitive(t *testing.T) {
	a := buildReport("glibc",
		[]frameSpec{
			{fn: "malloc", file: "/lib/libc.so", offset: 1},
			{fn: "free", file: "/lib/libc.so", offset: 2},
		},
	)
	b := buildReport("glibc",
		[]frameSpec{
			{fn: "free", file: "/lib/libc.so", offset: 2},
			{fn: "malloc", file: "/lib/libc.so", offset: 1},
		},
	)

	fa, err := Backtrace(a)
	require.NoError(t, err)
	fb, err := Backtrace(b)
	require.NoError(t, err)

	assert.NotEqual(t, fa[0].Hash, fb[0].Hash)
}

func TestShortPrefersFunctionName(t *testing.T) {
	// Two reports differing only in fingerprint values: if function_name is
	// selected (precedence respected), the short hashes are identical.
	a := buildReport("glibc",
		[]frameSpec{{fn: "malloc", fp: "aaaa", file: "/lib/libc.so", offset: 1}},
	)
	b := buildReport("glibc",
		[]frameSpec{{fn: "malloc", fp: "bbbb", file: "/lib/libc.so", offset: 1}},
	)

	ha, err := Short(a, 16)
	require.NoError(t, err)
	hb, err := Short(b, 16)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestShortFallsBackToOffset(t *testing.T) {
	a := buildReport("glibc",
		[]frameSpec{
			{fn: "malloc", file: "/lib/libc.so", offset: 1},
			{file: "/lib/libc.so", offset: 2}, // breaks function_name uniformity
		},
	)

	h, err := Short(a, 16)
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestShortTruncatesFrames(t *testing.T) {
	long := buildReport("glibc",
		[]frameSpec{
			{fn: "a", file: "/lib/libc.so", offset: 1},
			{fn: "b", file: "/lib/libc.so", offset: 2},
			{fn: "c", file: "/lib/libc.so", offset: 3},
		},
	)
	short := buildReport("glibc",
		[]frameSpec{
			{fn: "a", file: "/lib/libc.so", offset: 1},
			{fn: "b", file: "/lib/libc.so", offset: 2},
		},
	)

	hl, err := Short(long, 2)
	require.NoError(t, err)
	hs, err := Short(short, 2)
	require.NoError(t, err)

	assert.Equal(t, hs, hl, "frames beyond the limit must not contribute")
}

func TestShortUsesOnlyCrashThread(t *testing.T) {
	a := buildReport("glibc",
		[]frameSpec{{fn: "ignored", file: "/lib/liba.so", offset: 9}},
		[]frameSpec{{fn: "malloc", file: "/lib/libc.so", offset: 1}},
	)
	b := buildReport("glibc",
		[]frameSpec{{fn: "different", file: "/lib/libb.so", offset: 8}},
		[]frameSpec{{fn: "malloc", file: "/lib/libc.so", offset: 1}},
	)

	ha, err := Short(a, 16)
	require.NoError(t, err)
	hb, err := Short(b, 16)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestShortNoCrashThread(t *testing.T) {
	r := sampleReport()
	r.Stacktrace[1].CrashThread = false

	_, err := Short(r, 16)
	assert.True(t, report.IsNoCrashThread(err))
}

func TestBacktraceRenderingGolden(t *testing.T) {
	g := goldie.New(t)
	lines := backtraceLines(sampleReport(), StrategyFunctionName)
	g.Assert(t, "backtrace_function_name", []byte(render(lines)))
}
