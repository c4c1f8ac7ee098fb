package emitter

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// opName is the mnemonic printed for each OpCode.
func opName(op OpCode) string {
	switch op {
	case OpMoveInt:
		return "MOVE_INT"
	case OpMoveFloat:
		return "MOVE_FLOAT"
	case OpArithInt:
		return "ARITH_INT"
	case OpArithFloat:
		return "ARITH_FLOAT"
	case OpLoadBaseOffset:
		return "LOAD_OFFSET"
	case OpStoreBaseOffset:
		return "STORE_OFFSET"
	case OpLoadFloatLit:
		return "LOAD_FLOAT"
	case OpLoadIntLit:
		return "LOAD_INT"
	case OpLoadBoolLit:
		return "LOAD_BOOL"
	case OpLoadNoneLit:
		return "LOAD_NONE"
	case OpLoadConst:
		return "LOAD_CONST"
	case OpCall:
		return "CALL"
	case OpCallDispatch:
		return "CALL_DISPATCH"
	case OpCallAddress:
		return "CALL_ADDR"
	case OpJump:
		return "JUMP"
	case OpJumpIfFalse:
		return "JUMP_IF_FALSE"
	case OpPush:
		return "PUSH"
	case OpPop:
		return "POP"
	case OpAdjustStack:
		return "ADJUST_STACK"
	case OpAllocObject:
		return "ALLOC_OBJECT"
	case OpHalt:
		return "HALT"
	default:
		return fmt.Sprintf("OP(%d)", op)
	}
}

func arithOpName(code int64) string {
	names := []string{"+", "-", "*", "/", "%", "==", "!=", "<", "<=", ">", ">="}
	if code >= 0 && int(code) < len(names) {
		return names[code]
	}
	return "?"
}

// Disassemble writes one line per instruction in code, the byte offset,
// mnemonic, and operands, preceded by a "<name>:" line for each label name
// that labels maps to that offset. It treats code as a read-only view; execution
// still goes through Machine.
func Disassemble(w io.Writer, code []byte, labels map[int][]string) error {
	byOffset := make(map[int][]string)
	for off, names := range labels {
		byOffset[off] = names
	}

	for off := 0; off+instrSize <= len(code); off += instrSize {
		for _, name := range byOffset[off] {
			fmt.Fprintf(w, "%s:\n", name)
		}
		line, err := disasmInstruction(code, off)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%6d | %s\n", off, line)
	}
	if len(code)%instrSize != 0 {
		return fmt.Errorf("emitter: disassemble: trailing %d byte(s) not a whole instruction", len(code)%instrSize)
	}
	return nil
}

func disasmInstruction(code []byte, off int) (string, error) {
	if off+instrSize > len(code) {
		return "", fmt.Errorf("emitter: truncated instruction at offset %d", off)
	}
	rec := code[off : off+instrSize]
	op := OpCode(rec[0])
	a := int32(binary.LittleEndian.Uint32(rec[1:5]))
	b := int32(binary.LittleEndian.Uint32(rec[5:9]))
	c := int32(binary.LittleEndian.Uint32(rec[9:13]))
	target := int32(binary.LittleEndian.Uint32(rec[13:17]))
	fval := math.Float64frombits(binary.LittleEndian.Uint64(rec[17:25]))
	ival := int64(binary.LittleEndian.Uint64(rec[25:33]))

	switch op {
	case OpMoveInt, OpMoveFloat:
		return fmt.Sprintf("%-14s r%d, r%d", opName(op), a, b), nil
	case OpArithInt, OpArithFloat:
		return fmt.Sprintf("%-14s r%d, r%d, r%d  ; %s", opName(op), a, b, c, arithOpName(ival)), nil
	case OpLoadBaseOffset:
		return fmt.Sprintf("%-14s r%d, [r%d+%d]", opName(op), a, b, c), nil
	case OpStoreBaseOffset:
		return fmt.Sprintf("%-14s [r%d+%d], r%d", opName(op), a, b, c), nil
	case OpLoadFloatLit:
		return fmt.Sprintf("%-14s r%d, %g", opName(op), a, fval), nil
	case OpLoadIntLit:
		return fmt.Sprintf("%-14s r%d, %d", opName(op), a, ival), nil
	case OpLoadBoolLit:
		return fmt.Sprintf("%-14s r%d, %t", opName(op), a, ival != 0), nil
	case OpLoadNoneLit:
		return fmt.Sprintf("%-14s r%d", opName(op), a), nil
	case OpLoadConst:
		return fmt.Sprintf("%-14s r%d, const[%d]", opName(op), a, b), nil
	case OpCall, OpJump:
		return fmt.Sprintf("%-14s -> %d", opName(op), target), nil
	case OpJumpIfFalse:
		return fmt.Sprintf("%-14s r%d, -> %d", opName(op), a, target), nil
	case OpCallDispatch:
		return fmt.Sprintf("%-14s token=%d", opName(op), target), nil
	case OpCallAddress:
		return fmt.Sprintf("%-14s addr=%d", opName(op), target), nil
	case OpPush, OpPop:
		return fmt.Sprintf("%-14s r%d", opName(op), a), nil
	case OpAdjustStack:
		return fmt.Sprintf("%-14s %d", opName(op), a), nil
	case OpAllocObject:
		return fmt.Sprintf("%-14s r%d, size=%d", opName(op), a, b), nil
	case OpHalt:
		return opName(op), nil
	default:
		return fmt.Sprintf("%-14s a=%d b=%d c=%d", opName(op), a, b, c), nil
	}
}

// SortedLabelOffsets returns the byte offsets in labels in ascending
// order, for deterministic iteration when printing a fragment's label
// table alongside its disassembly.
func SortedLabelOffsets(labels map[int][]string) []int {
	offs := make([]int, 0, len(labels))
	for off := range labels {
		offs = append(offs, off)
	}
	sort.Ints(offs)
	return offs
}
