package emitter

import (
	"encoding/binary"
	"fmt"
	"math"
)

// OpCode tags one instruction in the reference instruction stream: one
// byte, switch-dispatched.
type OpCode byte

const (
	OpMoveInt OpCode = iota
	OpMoveFloat
	OpArithInt
	OpArithFloat
	OpLoadBaseOffset
	OpStoreBaseOffset
	OpLoadFloatLit
	OpLoadIntLit
	OpLoadBoolLit
	OpLoadNoneLit
	OpLoadConst
	OpCall
	OpCallDispatch
	OpCallAddress
	OpJump
	OpJumpIfFalse
	OpPush
	OpPop
	OpAdjustStack
	OpAllocObject
	OpHalt
)

// instr is one recorded instruction before relocation.
type instr struct {
	op      OpCode
	a, b, c int32
	fval    float64
	ival    int64
	label   Label // jump/call label target, empty if not applicable
	addr    int32 // CallAddress / CallDispatch fixed operand
	hasAddr bool
}

// RecordingEmitter accumulates instructions and label definitions, then
// serializes them on Assemble. It is the reference Emitter used by tests
// and by the end-to-end demo in cmd/pyjit.
type RecordingEmitter struct {
	code   []instr
	labels map[Label][]int // label -> code indices at which it was defined
}

// NewRecordingEmitter returns an empty emitter ready to record a single
// fragment's instructions.
func NewRecordingEmitter() *RecordingEmitter {
	return &RecordingEmitter{labels: make(map[Label][]int)}
}

func (e *RecordingEmitter) emit(i instr) { e.code = append(e.code, i) }

func (e *RecordingEmitter) MoveInt(dst, src Reg) {
	e.emit(instr{op: OpMoveInt, a: int32(dst), b: int32(src)})
}
func (e *RecordingEmitter) MoveFloat(dst, src Reg) {
	e.emit(instr{op: OpMoveFloat, a: int32(dst), b: int32(src)})
}

func (e *RecordingEmitter) ArithInt(op string, dst, a, b Reg) {
	e.emit(instr{op: OpArithInt, a: int32(dst), b: int32(a), c: int32(b), ival: int64(ArithOpCode(op))})
}
func (e *RecordingEmitter) ArithFloat(op string, dst, a, b Reg) {
	e.emit(instr{op: OpArithFloat, a: int32(dst), b: int32(a), c: int32(b), ival: int64(ArithOpCode(op))})
}

// ArithOpCode maps the Emitter interface's string operator spellings to a
// small dense code the wire format can carry in a single int64 slot. The
// bitwise and shift operators have no code here: they map to -1, which
// Machine rejects as an unknown op.
func ArithOpCode(op string) int {
	switch op {
	case "+":
		return 0
	case "-":
		return 1
	case "*":
		return 2
	case "/":
		return 3
	case "%":
		return 4
	case "==":
		return 5
	case "!=":
		return 6
	case "<":
		return 7
	case "<=":
		return 8
	case ">":
		return 9
	case ">=":
		return 10
	default:
		return -1
	}
}

func (e *RecordingEmitter) LoadBaseOffset(dst, base Reg, offset int) {
	e.emit(instr{op: OpLoadBaseOffset, a: int32(dst), b: int32(base), c: int32(offset)})
}
func (e *RecordingEmitter) StoreBaseOffset(base Reg, offset int, src Reg) {
	e.emit(instr{op: OpStoreBaseOffset, a: int32(base), b: int32(offset), c: int32(src)})
}

func (e *RecordingEmitter) LoadFloatLiteral(dst Reg, v float64) {
	e.emit(instr{op: OpLoadFloatLit, a: int32(dst), fval: v})
}
func (e *RecordingEmitter) LoadIntLiteral(dst Reg, v int64) {
	e.emit(instr{op: OpLoadIntLit, a: int32(dst), ival: v})
}

func (e *RecordingEmitter) LoadBoolLiteral(dst Reg, v bool) {
	iv := int64(0)
	if v {
		iv = 1
	}
	e.emit(instr{op: OpLoadBoolLit, a: int32(dst), ival: iv})
}

func (e *RecordingEmitter) LoadNoneLiteral(dst Reg) {
	e.emit(instr{op: OpLoadNoneLit, a: int32(dst)})
}

func (e *RecordingEmitter) LoadConst(dst Reg, idx int) {
	e.emit(instr{op: OpLoadConst, a: int32(dst), b: int32(idx)})
}

func (e *RecordingEmitter) Call(target Label) { e.emit(instr{op: OpCall, label: target}) }

func (e *RecordingEmitter) CallDispatch(token int) {
	e.emit(instr{op: OpCallDispatch, addr: int32(token), hasAddr: true})
}

func (e *RecordingEmitter) CallAddress(addr int) {
	e.emit(instr{op: OpCallAddress, addr: int32(addr), hasAddr: true})
}

func (e *RecordingEmitter) Jump(target Label) { e.emit(instr{op: OpJump, label: target}) }
func (e *RecordingEmitter) JumpIfFalse(cond Reg, target Label) {
	e.emit(instr{op: OpJumpIfFalse, a: int32(cond), label: target})
}

func (e *RecordingEmitter) DefineLabel(name Label) {
	e.labels[name] = append(e.labels[name], len(e.code))
}

func (e *RecordingEmitter) Push(src Reg) { e.emit(instr{op: OpPush, a: int32(src)}) }
func (e *RecordingEmitter) Pop(dst Reg)  { e.emit(instr{op: OpPop, a: int32(dst)}) }
func (e *RecordingEmitter) AdjustStack(delta int) {
	e.emit(instr{op: OpAdjustStack, a: int32(delta)})
}

func (e *RecordingEmitter) AllocObject(dst Reg, size int) {
	e.emit(instr{op: OpAllocObject, a: int32(dst), b: int32(size)})
}

func (e *RecordingEmitter) Halt() { e.emit(instr{op: OpHalt}) }

// PendingLabels returns every label referenced by a recorded jump or call
// that has no definition yet, in first-reference order. A completed
// emission pass has none; a pass cut short at an unresolved call split
// leaves its forward branch targets pending, and the caller must define
// them (at a trailing halt, say) before Assemble, which treats an
// undefined reference as a hard error.
func (e *RecordingEmitter) PendingLabels() []Label {
	seen := make(map[Label]bool)
	var out []Label
	for _, in := range e.code {
		if in.label == "" || seen[in.label] {
			continue
		}
		seen[in.label] = true
		if len(e.labels[in.label]) == 0 {
			out = append(out, in.label)
		}
	}
	return out
}

// instrSize is the fixed wire size of one encoded instruction: opcode (1)
// + three int32 operands (12) + a patched int32 target offset (4) + a
// float64 literal (8) + an int64 literal (8).
const instrSize = 1 + 12 + 4 + 8 + 8

// Assemble encodes the recorded instruction stream as fixed-size records.
// Every label reference is resolved in this single pass to the byte
// offset of the label's first definition and patched directly into the
// instruction record.
func (e *RecordingEmitter) Assemble() ([]byte, map[int]bool, map[Label][]int, error) {
	buf := make([]byte, 0, len(e.code)*instrSize)
	patchOffsets := make(map[int]bool)

	for i, in := range e.code {
		off := len(buf)
		rec := make([]byte, instrSize)
		rec[0] = byte(in.op)
		binary.LittleEndian.PutUint32(rec[1:5], uint32(in.a))
		binary.LittleEndian.PutUint32(rec[5:9], uint32(in.b))
		binary.LittleEndian.PutUint32(rec[9:13], uint32(in.c))

		target := int32(-1)
		switch {
		case in.hasAddr:
			target = in.addr
		case in.label != "":
			idxs, ok := e.labels[in.label]
			if !ok || len(idxs) == 0 {
				return nil, nil, nil, fmt.Errorf("emitter: undefined label %q referenced by instruction %d", in.label, i)
			}
			target = int32(idxs[0] * instrSize)
			patchOffsets[off+13] = true
		}
		binary.LittleEndian.PutUint32(rec[13:17], uint32(target))
		binary.LittleEndian.PutUint64(rec[17:25], math.Float64bits(in.fval))
		binary.LittleEndian.PutUint64(rec[25:33], uint64(in.ival))
		buf = append(buf, rec...)
	}

	offsets := make(map[Label][]int, len(e.labels))
	for name, idxs := range e.labels {
		for _, idx := range idxs {
			offsets[name] = append(offsets[name], idx*instrSize)
		}
	}
	return buf, patchOffsets, offsets, nil
}
