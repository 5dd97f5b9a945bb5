package retrace

// SourceLine is one resolution of an address: the function containing it,
// the source file, and the line number.
type SourceLine struct {
	Function string
	File     string
	Line     int64
}

// Resolver answers questions about an unpacked binary. Addr2Line returns
// every function the address falls in, innermost first: the deepest inlined
// function leads and the actual (outermost) function is last. A single-entry
// result means nothing was inlined at that address.
type Resolver interface {
	// BaseAddress returns the load base of the binary's text segment.
	BaseAddress(binary string) (uint64, error)

	// Addr2Line resolves an absolute address using debug information rooted
	// at debugRoot.
	Addr2Line(binary string, addr uint64, debugRoot string) ([]SourceLine, error)
}

// Demangler turns a mangled symbol name into its human-readable form.
type Demangler interface {
	Demangle(name string) (string, error)
}
