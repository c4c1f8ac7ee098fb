package compile

import (
	"strings"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/analyze"
	"github.com/bencz/python-jit/internal/annotate"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/emitter"
	"github.com/bencz/python-jit/internal/objruntime"
	"github.com/bencz/python-jit/internal/phase"
	"github.com/bencz/python-jit/internal/value"
)

// newPipeline wires a phase.Driver against this package's own Visitor the
// same way pkg/pyjit.New does, without importing that package back (it
// imports this one): build the driver with Dispatch left nil, build the
// dispatcher... here tests don't need the JIT dispatcher at all, only
// annotate+analyze+compile-and-run-root, so Dispatch stays nil and any
// test exercising an unresolved call is left to internal/jit's own tests.
func newPipeline() (*ctx.GlobalContext, *phase.Driver) {
	g := ctx.NewGlobalContext(nil)
	v := New()
	d := &phase.Driver{
		Compiler: v,
		Runtime:  objruntime.NewArena(),
	}
	d.Annotator = annotate.New(d.AdvanceModule)
	d.Analyzer = analyze.New(d.AdvanceModule)
	return g, d
}

func TestCompileAndRunRootAssignsModuleGlobal(t *testing.T) {
	g, d := newPipeline()
	m := g.GetOrCreateModule("m", nil)
	m.AST = &ast.Module{
		Body: []ast.Statement{
			&ast.Assignment{Target: &ast.VariableLookup{Name: "x"}, Value: &ast.Int{Value: 7}},
		},
	}

	if err := d.AdvanceModule(g, m, ctx.Imported); err != nil {
		t.Fatalf("AdvanceModule: %v", err)
	}

	slot, ok := m.Globals.Lookup("x")
	if !ok {
		t.Fatal("expected global x to be defined")
	}
	if slot.Value.Kind != value.Int || slot.Value.Int != 7 {
		t.Errorf("global x = %+v, want Int(7)", slot.Value)
	}
	if m.RootFragment == nil || !m.RootFragment.Published() {
		t.Fatal("expected the root fragment to be compiled and published")
	}
}

func TestCompileAndRunRootSpecializesPerArgType(t *testing.T) {
	g, d := newPipeline()
	m := g.GetOrCreateModule("m", nil)
	fnDef := &ast.FunctionDefinition{
		Name: "f",
		Args: []ast.Param{{Name: "x"}},
		Body: []ast.Statement{
			&ast.Return{Value: &ast.Binary{Op: "+", Left: &ast.VariableLookup{Name: "x"}, Right: &ast.Int{Value: 1}}},
		},
	}
	m.AST = &ast.Module{Body: []ast.Statement{fnDef}}

	if err := d.AdvanceModule(g, m, ctx.Analyzed); err != nil {
		t.Fatalf("AdvanceModule to Analyzed: %v", err)
	}

	fn, ok := g.Function(fnDef.ID)
	if !ok {
		t.Fatalf("expected function %q to be registered under id %d", fnDef.Name, fnDef.ID)
	}

	intFrag := fn.NewFragment([]value.Value{value.IntType()})
	if err := New().CompileFunctionFragment(g, m, fn, intFrag); err != nil {
		t.Fatalf("CompileFunctionFragment(Int): %v", err)
	}
	if intFrag.ReturnType.Kind != value.Int {
		t.Errorf("Int fragment return type = %s, want Int", intFrag.ReturnType.Kind)
	}

	floatFrag := fn.NewFragment([]value.Value{value.FloatType()})
	if err := New().CompileFunctionFragment(g, m, fn, floatFrag); err != nil {
		t.Fatalf("CompileFunctionFragment(Float): %v", err)
	}
	if floatFrag.ReturnType.Kind != value.Float {
		t.Errorf("Float fragment return type = %s, want Float", floatFrag.ReturnType.Kind)
	}

	if len(fn.Fragments) != 2 {
		t.Fatalf("expected 2 fragments on %q, got %d", fn.Name, len(fn.Fragments))
	}
}

// TestDisassembleRootFragmentSnapshot snapshots the disassembly of a
// simple root fragment, pinning the instruction stream's shape as a
// golden file instead of a hand-maintained expected string.
func TestDisassembleRootFragmentSnapshot(t *testing.T) {
	g, d := newPipeline()
	m := g.GetOrCreateModule("m", nil)
	m.AST = &ast.Module{
		Body: []ast.Statement{
			&ast.Assignment{Target: &ast.VariableLookup{Name: "x"}, Value: &ast.Int{Value: 7}},
			&ast.Assignment{Target: &ast.VariableLookup{Name: "y"}, Value: &ast.Binary{Op: "+", Left: &ast.VariableLookup{Name: "x"}, Right: &ast.Int{Value: 1}}},
		},
	}

	if err := d.AdvanceModule(g, m, ctx.Imported); err != nil {
		t.Fatalf("AdvanceModule: %v", err)
	}

	var sb strings.Builder
	if err := emitter.Disassemble(&sb, m.RootFragment.Compiled, m.RootFragment.CompiledLabels); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	snaps.MatchSnapshot(t, sb.String())
}
