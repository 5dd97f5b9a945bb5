package model

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath reduces a binary path to its library name so the same
// library resolves to one Symbol identity regardless of install layout or
// minor version: the directory is stripped and anything after the ".so"
// marker is dropped ("/usr/lib64/libc-2.17.so" -> "libc-2.17.so",
// "/lib/libfoo.so.1.2.3" -> "libfoo.so").
func NormalizePath(binaryPath string) string {
	name := path.Base(binaryPath)
	if idx := strings.LastIndex(name, ".so"); idx > 0 {
		name = name[:idx+len(".so")]
	}
	return name
}

// AbsPath canonicalizes a report-supplied binary path without consulting the
// local filesystem. Relative paths are anchored at the root.
func AbsPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// UsrMove returns the /usr-merge alias of a path: "/lib/ld.so" <->
// "/usr/lib/ld.so". Package contents may be recorded under either layout.
func UsrMove(p string) string {
	if strings.HasPrefix(p, "/usr") {
		return p[len("/usr"):]
	}
	return "/usr" + p
}

// DebugFilePaths lists the well-known debug-info file locations for a build
// id, used to find the package supplying debug symbols.
func DebugFilePaths(buildID string) []string {
	if len(buildID) < 3 {
		return nil
	}
	return []string{
		fmt.Sprintf("/usr/lib/debug/.build-id/%s/%s.debug", buildID[:2], buildID[2:]),
		fmt.Sprintf("/usr/lib/.build-id/%s/%s", buildID[:2], buildID[2:]),
	}
}
