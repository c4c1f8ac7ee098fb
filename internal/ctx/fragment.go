package ctx

import "github.com/bencz/python-jit/internal/value"

// UnmaterializedSplit is the sentinel stored in CallSplitOffsets for a
// split whose surrounding code path terminated emission before the call
// was reached.
const UnmaterializedSplit = -1

// Fragment is one compiled specialization of a function, or of a
// module's root. Function is nil for a module-root
// fragment.
type Fragment struct {
	Function *FunctionContext
	Index    int

	ArgTypes   []value.Value
	ReturnType value.Value

	Compiled []byte // nil until the compilation visitor has run and this fragment is published

	// CodeBase is the absolute offset into GlobalContext.CodeBuffer at
	// which Compiled begins, as returned by GlobalContext.AppendCode.
	// ResumeAddress's offsets are relative to Compiled; a caller needs
	// CodeBase + that offset to get an absolute address to jump to.
	CodeBase int

	// CompiledLabels maps a byte offset to every label the emitter placed
	// there.
	CompiledLabels map[int][]string

	// CallSplitLabels[splitID] is the emitter label placed immediately
	// after the call site for that split.
	CallSplitLabels []string

	// CallSplitOffsets[splitID] is either UnmaterializedSplit or a byte
	// offset into Compiled.
	CallSplitOffsets []int
}

// Published reports whether this fragment's machine code has been
// assembled and is safe to call into.
func (f *Fragment) Published() bool { return f.Compiled != nil }

// ResumeAddress returns the byte offset within Compiled at which control
// should resume after splitID's call, or false if that split was never
// materialized or lies outside the compiled bytes.
func (f *Fragment) ResumeAddress(splitID int) (int, bool) {
	if splitID < 0 || splitID >= len(f.CallSplitOffsets) {
		return 0, false
	}
	off := f.CallSplitOffsets[splitID]
	if off < 0 || off >= len(f.Compiled) {
		return 0, false
	}
	return off, true
}
