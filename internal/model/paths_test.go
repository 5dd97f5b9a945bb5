package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/usr/lib64/libc-2.17.so", "libc-2.17.so"},
		{"/lib/libfoo.so.1.2.3", "libfoo.so"},
		{"/usr/bin/crasher", "crasher"},
		{"libbar.so.6", "libbar.so"},
		{"/opt/app/lib/libz.so", "libz.so"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.path), "path %q", tt.path)
	}
}

func TestNormalizePathLeadingSo(t *testing.T) {
	// ".so" at index 0 must not truncate to an empty name.
	assert.Equal(t, ".so.conf", NormalizePath("/etc/.so.conf"))
}

func TestAbsPath(t *testing.T) {
	assert.Equal(t, "/usr/bin/crasher", AbsPath("/usr/bin/crasher"))
	assert.Equal(t, "/usr/bin/crasher", AbsPath("/usr/bin/../bin/crasher"))
	assert.Equal(t, "/crasher", AbsPath("crasher"))
}

func TestUsrMove(t *testing.T) {
	assert.Equal(t, "/lib64/ld.so", UsrMove("/usr/lib64/ld.so"))
	assert.Equal(t, "/usr/lib64/ld.so", UsrMove("/lib64/ld.so"))
	assert.Equal(t, "/lib64/ld.so", UsrMove(UsrMove("/lib64/ld.so")))
}

func TestDebugFilePaths(t *testing.T) {
	paths := DebugFilePaths("ab12cd")
	assert.Equal(t, []string{
		"/usr/lib/debug/.build-id/ab/12cd.debug",
		"/usr/lib/.build-id/ab/12cd",
	}, paths)

	assert.Nil(t, DebugFilePaths("ab"))
}

func TestSymbolSourceFlags(t *testing.T) {
	src := "/src/foo.c"
	line := int64(42)
	sym := int64(1)

	s := &SymbolSource{Path: "/usr/lib/libfoo.so", Offset: 0x10}
	assert.False(t, s.Resolved())
	assert.False(t, s.Inlined())

	s.SymbolID = &sym
	s.SourcePath = &src
	s.LineNumber = &line
	assert.True(t, s.Resolved())

	inl := &SymbolSource{Path: s.Path, Offset: -line}
	assert.True(t, inl.Inlined())
}
