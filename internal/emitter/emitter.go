// Package emitter defines the abstract native-code emitter interface used
// by the compilation visitor. No real assembler lives in this module;
// production use plugs an x86/arm64 backend in behind the interface. The
// package additionally ships a small reference implementation
// (RecordingEmitter) and a matching interpreter (Machine), enough to
// drive the compilation visitor and the JIT dispatcher end to end in
// tests.
package emitter

// Reg identifies an integer or float register slot. The reference
// implementation keeps one unified register file; a real backend would
// map integer and float registers to distinct physical files.
type Reg int

// Label names a position the emitter has not necessarily assigned an
// offset to yet; Assemble resolves every label to one or more offsets.
type Label string

// Emitter is the native-code emission surface the compilation visitor
// drives. Every method appends to the emitter's internal
// instruction stream; nothing is materialized until Assemble is called.
type Emitter interface {
	// MoveInt / MoveFloat copy src into dst.
	MoveInt(dst, src Reg)
	MoveFloat(dst, src Reg)

	// ArithInt / ArithFloat computes dst = a op b for op in
	// {"+","-","*","/","%","&","|","^","<<",">>","==","!=","<","<=",">",">="}.
	ArithInt(op string, dst, a, b Reg)
	ArithFloat(op string, dst, a, b Reg)

	// LoadBaseOffset / StoreBaseOffset perform base+offset addressed
	// loads and stores.
	LoadBaseOffset(dst, base Reg, offset int)
	StoreBaseOffset(base Reg, offset int, src Reg)

	// LoadFloatLiteral materializes a floating-point constant into dst.
	LoadFloatLiteral(dst Reg, v float64)
	// LoadIntLiteral materializes an integer constant into dst.
	LoadIntLiteral(dst Reg, v int64)
	// LoadBoolLiteral materializes a boolean constant into dst. Bool has
	// its own op rather than an Int encoding, so a register's value
	// retains its Bool kind end to end.
	LoadBoolLiteral(dst Reg, v bool)
	// LoadNoneLiteral materializes the single None value into dst.
	LoadNoneLiteral(dst Reg)
	// LoadConst materializes constant idx of the global constants pool
	// (built by GlobalContext.InternConst) into dst. Literal kinds that
	// cannot inline through a register move (Bytes, Unicode, fully-known
	// container literals) are interned once and addressed through this
	// single primitive.
	LoadConst(dst Reg, idx int)

	// AllocObject reserves a size-slot heap object and loads its heap
	// handle into dst, for list/tuple/dict/instance construction. The
	// reference Machine addresses its heap by dense index rather than
	// raw memory address, so compiled code needs a primitive to reserve
	// a slot before StoreBaseOffset can target it.
	AllocObject(dst Reg, size int)

	// Call transfers control to a label defined elsewhere in the same
	// fragment (used for compiled helper sequences that are not
	// themselves unresolved user calls, e.g. `with`/`finally` cleanup).
	Call(target Label)
	// CallDispatch emits the call-site trampoline transfer: control
	// passes to the JIT dispatcher carrying token, which the compilation
	// visitor obtained from GlobalContext.NextCallsiteToken when it
	// registered the UnresolvedFunctionCall.
	CallDispatch(token int)
	// CallAddress emits a direct call to a fixed byte offset within the
	// shared global code buffer, used once the callee fragment is known
	// to be published.
	CallAddress(addr int)

	// Jump and JumpIfFalse implement unconditional and conditional
	// control transfer.
	Jump(target Label)
	JumpIfFalse(cond Reg, target Label)

	// DefineLabel marks the current emission position with name. A
	// position may carry more than one label.
	DefineLabel(name Label)

	// Halt stops the current frame: a fragment's compiled code always ends
	// with one, so a nested Call/CallAddress/CallDispatch frame returns to
	// its caller instead of running on into whatever is appended to the
	// shared code buffer next.
	Halt()

	// Push / Pop move a register to/from the native stack.
	Push(src Reg)
	Pop(dst Reg)
	// AdjustStack moves the stack pointer by delta bytes (negative to
	// reserve space, positive to release it).
	AdjustStack(delta int)

	// Assemble finalizes the instruction stream into bytes, a set of
	// byte offsets that still carry unresolved relocations, and a
	// multimap from label name to every offset at which it was defined.
	Assemble() (code []byte, patchOffsets map[int]bool, labelOffsets map[Label][]int, err error)
}
