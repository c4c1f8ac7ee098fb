package emitter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bencz/python-jit/internal/value"
)

// Dispatcher is the hook OpCallDispatch invokes: given a callsite token,
// it compiles or resolves the callee, recompiles the caller if needed,
// and returns the resume address, or an error. A function type rather
// than a concrete dispatcher keeps the import graph acyclic.
type Dispatcher func(token int, regs []value.Value) (resumeAddr int, err error)

// ConstLookup resolves a constants-pool index to its Value without this
// package depending on the context registry.
type ConstLookup func(idx int) value.Value

// Machine executes the byte-encoded instruction stream produced by
// RecordingEmitter.Assemble. It is the reference hardware standing in
// for a native backend, sized to make the compilation visitor and JIT
// dispatcher testable end to end.
type Machine struct {
	Regs    []value.Value
	Stack   []value.Value
	Heap    [][]value.Value // indexed "objects"; base registers hold a Heap index in .Int
	Disp    Dispatcher
	Consts  ConstLookup

	// Globals maps a module name to the Heap index holding that module's
	// globals-space snapshot, so compiled code can address module
	// globals the same way it addresses any other heap object (a
	// LoadIntLiteral of the index, then LoadBaseOffset/StoreBaseOffset).
	// Populated by whatever built the machine (internal/compile's root
	// driver), not by the Machine itself.
	Globals map[string]int
}

// NewMachine allocates a machine with n general registers.
func NewMachine(n int, disp Dispatcher) *Machine {
	regs := make([]value.Value, n)
	for i := range regs {
		regs[i] = value.Indeterminate_()
	}
	return &Machine{Regs: regs, Disp: disp, Globals: make(map[string]int)}
}

// Run executes a static byte stream starting at offset start. Callers
// that can reach OpCallDispatch against a growing shared code buffer
// must use RunFrom instead.
func (m *Machine) Run(code []byte, start int) error {
	return m.RunFrom(&code, start)
}

// RunFrom executes the instruction stream at *codeBase starting at byte
// offset start, re-reading *codeBase on every iteration. A Dispatcher
// invoked mid-run can append newly compiled fragments to the same code
// buffer; a slice header captured up front would go stale if that append
// reallocates.
func (m *Machine) RunFrom(codeBase *[]byte, start int) error {
	ip := start
	for {
		code := *codeBase
		if ip >= len(code) {
			return nil
		}
		if ip+instrSize > len(code) {
			return fmt.Errorf("machine: truncated instruction at offset %d", ip)
		}
		rec := code[ip : ip+instrSize]
		op := OpCode(rec[0])
		a := int32(binary.LittleEndian.Uint32(rec[1:5]))
		b := int32(binary.LittleEndian.Uint32(rec[5:9]))
		c := int32(binary.LittleEndian.Uint32(rec[9:13]))
		target := int32(binary.LittleEndian.Uint32(rec[13:17]))
		fval := math.Float64frombits(binary.LittleEndian.Uint64(rec[17:25]))
		ival := int64(binary.LittleEndian.Uint64(rec[25:33]))

		next := ip + instrSize
		switch op {
		case OpHalt:
			return nil
		case OpMoveInt, OpMoveFloat:
			m.Regs[a] = m.Regs[b]
		case OpArithInt:
			res, err := arithInt(int(ival), m.Regs[b], m.Regs[c])
			if err != nil {
				return err
			}
			m.Regs[a] = res
		case OpArithFloat:
			res, err := arithFloat(int(ival), m.Regs[b], m.Regs[c])
			if err != nil {
				return err
			}
			m.Regs[a] = res
		case OpLoadBaseOffset:
			base := m.Regs[b]
			if base.Kind != value.Int {
				return fmt.Errorf("machine: LoadBaseOffset base register does not hold a heap index")
			}
			obj := m.Heap[base.Int]
			if int(c) >= len(obj) {
				return fmt.Errorf("machine: LoadBaseOffset offset %d out of range", c)
			}
			m.Regs[a] = obj[c]
		case OpStoreBaseOffset:
			base := m.Regs[a]
			if base.Kind != value.Int {
				return fmt.Errorf("machine: StoreBaseOffset base register does not hold a heap index")
			}
			obj := m.Heap[base.Int]
			if int(b) >= len(obj) {
				return fmt.Errorf("machine: StoreBaseOffset offset %d out of range", b)
			}
			obj[b] = m.Regs[c]
		case OpLoadFloatLit:
			m.Regs[a] = value.FloatValue(fval)
		case OpLoadIntLit:
			m.Regs[a] = value.IntValue(ival)
		case OpLoadBoolLit:
			m.Regs[a] = value.BoolValue(ival != 0)
		case OpLoadNoneLit:
			m.Regs[a] = value.NoneValue()
		case OpLoadConst:
			if m.Consts == nil {
				return fmt.Errorf("machine: OpLoadConst with no constant pool attached")
			}
			m.Regs[a] = m.Consts(int(b))
		case OpCall:
			if err := m.RunFrom(codeBase, int(target)); err != nil {
				return err
			}
		case OpCallAddress:
			if err := m.RunFrom(codeBase, int(target)); err != nil {
				return err
			}
		case OpCallDispatch:
			if m.Disp == nil {
				return fmt.Errorf("machine: OpCallDispatch with no dispatcher attached")
			}
			resume, err := m.Disp(int(target), m.Regs)
			if err != nil {
				return err
			}
			next = resume
		case OpJump:
			next = int(target)
		case OpJumpIfFalse:
			truth, known := value.TruthValue(m.Regs[a])
			if known && !truth {
				next = int(target)
			}
		case OpPush:
			m.Stack = append(m.Stack, m.Regs[a])
		case OpPop:
			if len(m.Stack) == 0 {
				return fmt.Errorf("machine: Pop on empty stack")
			}
			m.Regs[a] = m.Stack[len(m.Stack)-1]
			m.Stack = m.Stack[:len(m.Stack)-1]
		case OpAdjustStack:
			// The reference machine's stack is a slice, not a fixed
			// frame, so reservation/release is a no-op; a real backend
			// would move the stack pointer by the delta.
		case OpAllocObject:
			m.Regs[a] = value.IntValue(int64(m.AllocHeapObject(int(b))))
		default:
			return fmt.Errorf("machine: unknown opcode %d at offset %d", op, ip)
		}
		ip = next
	}
}

// AllocHeapObject reserves a new n-slot object and returns its heap
// index, suitable for loading into a base register.
func (m *Machine) AllocHeapObject(n int) int {
	obj := make([]value.Value, n)
	for i := range obj {
		obj[i] = value.Indeterminate_()
	}
	m.Heap = append(m.Heap, obj)
	return len(m.Heap) - 1
}

func arithInt(op int, a, b value.Value) (value.Value, error) {
	if a.Kind != value.Int || b.Kind != value.Int {
		return value.Value{}, fmt.Errorf("machine: ArithInt on non-Int operands")
	}
	switch op {
	case 0:
		return value.IntValue(a.Int + b.Int), nil
	case 1:
		return value.IntValue(a.Int - b.Int), nil
	case 2:
		return value.IntValue(a.Int * b.Int), nil
	case 3:
		if b.Int == 0 {
			return value.Value{}, fmt.Errorf("machine: integer division by zero")
		}
		return value.IntValue(a.Int / b.Int), nil
	case 4:
		if b.Int == 0 {
			return value.Value{}, fmt.Errorf("machine: integer modulo by zero")
		}
		return value.IntValue(a.Int % b.Int), nil
	case 5:
		return value.BoolValue(a.Int == b.Int), nil
	case 6:
		return value.BoolValue(a.Int != b.Int), nil
	case 7:
		return value.BoolValue(a.Int < b.Int), nil
	case 8:
		return value.BoolValue(a.Int <= b.Int), nil
	case 9:
		return value.BoolValue(a.Int > b.Int), nil
	case 10:
		return value.BoolValue(a.Int >= b.Int), nil
	default:
		return value.Value{}, fmt.Errorf("machine: unknown int arith op %d", op)
	}
}

func arithFloat(op int, a, b value.Value) (value.Value, error) {
	toF := func(v value.Value) (float64, bool) {
		switch v.Kind {
		case value.Float:
			return v.Float, true
		case value.Int:
			return float64(v.Int), true
		default:
			return 0, false
		}
	}
	af, ok1 := toF(a)
	bf, ok2 := toF(b)
	if !ok1 || !ok2 {
		return value.Value{}, fmt.Errorf("machine: ArithFloat on non-numeric operands")
	}
	switch op {
	case 0:
		return value.FloatValue(af + bf), nil
	case 1:
		return value.FloatValue(af - bf), nil
	case 2:
		return value.FloatValue(af * bf), nil
	case 3:
		if bf == 0 {
			return value.Value{}, fmt.Errorf("machine: float division by zero")
		}
		return value.FloatValue(af / bf), nil
	case 5:
		return value.BoolValue(af == bf), nil
	case 6:
		return value.BoolValue(af != bf), nil
	case 7:
		return value.BoolValue(af < bf), nil
	case 8:
		return value.BoolValue(af <= bf), nil
	case 9:
		return value.BoolValue(af > bf), nil
	case 10:
		return value.BoolValue(af >= bf), nil
	default:
		return value.Value{}, fmt.Errorf("machine: unknown float arith op %d", op)
	}
}
