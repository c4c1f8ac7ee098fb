package phase

import (
	"testing"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/emitter"
	"github.com/bencz/python-jit/internal/objruntime"
	"github.com/bencz/python-jit/internal/value"
)

type stubAnnotator struct{ err error }

func (s stubAnnotator) Annotate(g *ctx.GlobalContext, m *ctx.ModuleContext) error { return s.err }

type stubAnalyzer struct {
	err       error
	addGlobal func(m *ctx.ModuleContext)
}

func (s stubAnalyzer) Analyze(g *ctx.GlobalContext, m *ctx.ModuleContext) error {
	if s.addGlobal != nil {
		s.addGlobal(m)
	}
	return s.err
}

type stubCompiler struct {
	result value.Value
	err    error
}

func (s stubCompiler) CompileAndRunRoot(g *ctx.GlobalContext, m *ctx.ModuleContext, rt objruntime.Runtime, disp emitter.Dispatcher) (value.Value, error) {
	return s.result, s.err
}

func newTestModule(g *ctx.GlobalContext, name string) *ctx.ModuleContext {
	m := g.GetOrCreateModule(name, nil)
	m.AST = &ast.Module{}
	return m
}

func TestAdvanceModuleRunsStepsInOrder(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newTestModule(g, "m")

	d := &Driver{
		Annotator: stubAnnotator{},
		Analyzer: stubAnalyzer{addGlobal: func(m *ctx.ModuleContext) {
			m.Globals.Define("x", 0)
		}},
		Compiler: stubCompiler{result: value.Indeterminate_()},
		Runtime:  objruntime.NewArena(),
	}

	if err := d.AdvanceModule(g, m, ctx.Imported); err != nil {
		t.Fatalf("AdvanceModule: %v", err)
	}
	if m.Phase != ctx.Imported {
		t.Fatalf("phase = %v, want Imported", m.Phase)
	}
}

func TestAdvanceModuleIsNoOpPastTarget(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newTestModule(g, "m")
	m.Phase = ctx.Analyzed

	d := &Driver{}
	if err := d.AdvanceModule(g, m, ctx.Annotated); err != nil {
		t.Fatalf("AdvanceModule: %v", err)
	}
	if m.Phase != ctx.Analyzed {
		t.Fatalf("phase regressed to %v", m.Phase)
	}
}

func TestStaticInitializeMaterializesKnownKinds(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newTestModule(g, "m")

	slot := m.Globals.Define("b", ctx.StaticInitialize)
	slot.Value = value.BytesValue([]byte("hi"))

	intSlot := m.Globals.Define("n", ctx.StaticInitialize)
	intSlot.Value = value.IntValue(7)

	d := &Driver{Runtime: objruntime.NewArena()}
	m.AllocateGlobalSpace()
	if err := d.staticInitialize(g, m); err != nil {
		t.Fatalf("staticInitialize: %v", err)
	}
	if !m.AllSlotsWritten() {
		t.Fatalf("expected all flagged slots written")
	}

	h, ok := m.GlobalSpace[slot.Index].Payload.(objruntime.Handle)
	if !ok {
		t.Fatalf("bytes slot did not materialize to a handle")
	}
	if d.Runtime.BytesLength(h) != 2 {
		t.Fatalf("materialized bytes length = %d, want 2", d.Runtime.BytesLength(h))
	}

	iv, ok := m.GlobalSpace[intSlot.Index].Payload.(value.Value)
	if !ok || iv.Int != 7 {
		t.Fatalf("int slot payload = %#v, want IntValue(7)", m.GlobalSpace[intSlot.Index].Payload)
	}
}

func TestStaticInitializeRejectsSetAndTuple(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newTestModule(g, "m")
	slot := m.Globals.Define("s", ctx.StaticInitialize)
	slot.Value = value.SetValue(nil)

	d := &Driver{Runtime: objruntime.NewArena()}
	m.AllocateGlobalSpace()
	if err := d.staticInitialize(g, m); err == nil {
		t.Fatalf("expected error statically initializing a Set global")
	}
}

func TestCycleDetectionRejectsReentrantAdvance(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newTestModule(g, "m")

	if err := g.EnterScope("m+ADVANCE"); err != nil {
		t.Fatalf("EnterScope: %v", err)
	}
	defer g.ExitScope("m+ADVANCE")

	d := &Driver{}
	if err := d.AdvanceModule(g, m, ctx.Parsed); err == nil {
		t.Fatalf("expected cyclic re-entry error")
	}
}
