package emitter

import (
	"strings"
	"testing"
)

func TestDisassembleRoundTripsInstructionShapes(t *testing.T) {
	e := NewRecordingEmitter()
	e.LoadIntLiteral(0, 7)
	e.LoadIntLiteral(1, 1)
	e.ArithInt("+", 0, 0, 1)
	e.DefineLabel("done")
	e.JumpIfFalse(0, "done")
	e.CallDispatch(42)
	e.Halt()

	code, _, labels, err := e.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	labelsByOffset := make(map[int][]string)
	for name, offs := range labels {
		for _, off := range offs {
			labelsByOffset[off] = append(labelsByOffset[off], string(name))
		}
	}

	var sb strings.Builder
	if err := Disassemble(&sb, code, labelsByOffset); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}

	out := sb.String()
	for _, want := range []string{"LOAD_INT", "ARITH_INT", "done:", "JUMP_IF_FALSE", "CALL_DISPATCH", "token=42", "HALT"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q, got:\n%s", want, out)
		}
	}
}

func TestDisassembleRejectsTruncatedStream(t *testing.T) {
	var sb strings.Builder
	err := Disassemble(&sb, []byte{0x00, 0x01, 0x02}, nil)
	if err == nil {
		t.Fatal("expected an error disassembling a truncated instruction stream")
	}
}

func TestArithOpName(t *testing.T) {
	if got := arithOpName(int64(ArithOpCode("+"))); got != "+" {
		t.Errorf("arithOpName(+) = %q", got)
	}
	if got := arithOpName(999); got != "?" {
		t.Errorf("arithOpName(out of range) = %q, want \"?\"", got)
	}
}
