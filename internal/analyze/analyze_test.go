package analyze

import (
	"testing"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/annotate"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/value"
)

func newModule(g *ctx.GlobalContext, name string, body []ast.Statement) *ctx.ModuleContext {
	m := g.GetOrCreateModule(name, nil)
	m.AST = &ast.Module{Body: body}
	return m
}

// runAnalyzed annotates then analyzes m in one call, the order the phase
// driver itself always uses.
func runAnalyzed(t *testing.T, g *ctx.GlobalContext, m *ctx.ModuleContext) {
	t.Helper()
	if err := annotate.New(nil).Annotate(g, m); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if err := New(nil).Analyze(g, m); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
}

func TestArithmeticConstantFoldsIntoGlobal(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newModule(g, "m", []ast.Statement{
		&ast.Assignment{
			Target: &ast.VariableLookup{Name: "x"},
			Value: &ast.Binary{
				Op:    "+",
				Left:  &ast.Int{Value: 2},
				Right: &ast.Int{Value: 3},
			},
		},
	})
	runAnalyzed(t, g, m)

	slot, ok := m.Globals.Lookup("x")
	if !ok {
		t.Fatalf("x not defined")
	}
	if slot.Value.Kind != value.Int || !slot.Value.Known || slot.Value.Int != 5 {
		t.Fatalf("x = %#v, want known Int(5)", slot.Value)
	}
}

func TestEmptyListLiteralIsIndeterminateExtension(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newModule(g, "m", []ast.Statement{
		&ast.Assignment{Target: &ast.VariableLookup{Name: "xs"}, Value: &ast.ListLit{}},
	})
	runAnalyzed(t, g, m)

	slot, _ := m.Globals.Lookup("xs")
	if slot.Value.Kind != value.List || !slot.Value.Known {
		t.Fatalf("xs = %#v, want known empty List", slot.Value)
	}
	if len(slot.Value.Ext) != 1 || slot.Value.Ext[0].Kind != value.Indeterminate {
		t.Fatalf("empty list extension = %#v, want [Indeterminate]", slot.Value.Ext)
	}
}

func TestIfWithKnownTrueConditionTagsAlwaysTrue(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	ifStmt := &ast.If{
		Cond: &ast.True{},
		Body: []ast.Statement{
			&ast.Assignment{Target: &ast.VariableLookup{Name: "x"}, Value: &ast.Int{Value: 1}},
		},
		Else: []ast.Statement{
			&ast.Assignment{Target: &ast.VariableLookup{Name: "x"}, Value: &ast.Unicode{Value: "unreachable"}},
		},
		HasElse: true,
	}
	m := newModule(g, "m", []ast.Statement{ifStmt})
	runAnalyzed(t, g, m)

	if !ifStmt.AlwaysTrue || !ifStmt.ElseUnreachable {
		t.Fatalf("expected AlwaysTrue/ElseUnreachable to be set, got %+v", ifStmt)
	}
	slot, _ := m.Globals.Lookup("x")
	if slot.Value.Kind != value.Int {
		t.Fatalf("unreachable else branch should not have been visited, x = %#v", slot.Value)
	}
}

func TestForOverListTypesLoopVariableByElement(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	forStmt := &ast.For{
		Var: "item",
		Iter: &ast.ListLit{Items: []ast.Expression{
			&ast.Int{Value: 1}, &ast.Int{Value: 2},
		}},
		Body: []ast.Statement{
			&ast.Assignment{Target: &ast.VariableLookup{Name: "last"}, Value: &ast.VariableLookup{Name: "item"}},
		},
	}
	m := newModule(g, "m", []ast.Statement{forStmt})
	runAnalyzed(t, g, m)

	slot, ok := m.Globals.Lookup("last")
	if !ok {
		t.Fatalf("last not defined")
	}
	if slot.Value.Kind != value.Int {
		t.Fatalf("loop variable propagated as %s, want Int", slot.Value.Kind)
	}
}

func TestAssignmentTypeChangeIsError(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newModule(g, "m", []ast.Statement{
		&ast.Assignment{Target: &ast.VariableLookup{Name: "x"}, Value: &ast.Int{Value: 1}},
		&ast.Assignment{Target: &ast.VariableLookup{Name: "x"}, Value: &ast.Unicode{Value: "oops"}},
	})
	if err := annotate.New(nil).Annotate(g, m); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if err := New(nil).Analyze(g, m); err == nil {
		t.Fatalf("expected error changing the type of x from Int to Unicode")
	}
}

func TestAssignmentDifferingKnownValueDemotesToTypeOnly(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newModule(g, "m", []ast.Statement{
		&ast.Assignment{Target: &ast.VariableLookup{Name: "x"}, Value: &ast.Int{Value: 1}},
		&ast.Assignment{Target: &ast.VariableLookup{Name: "x"}, Value: &ast.Int{Value: 2}},
	})
	runAnalyzed(t, g, m)

	slot, _ := m.Globals.Lookup("x")
	if slot.Value.Kind != value.Int || slot.Value.Known {
		t.Fatalf("x = %#v, want type-only Int after a differing second write", slot.Value)
	}
}

func TestTopLevelKnownAssignmentIsStaticInitialize(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newModule(g, "m", []ast.Statement{
		&ast.Assignment{Target: &ast.VariableLookup{Name: "x"}, Value: &ast.Int{Value: 1}},
		&ast.If{
			Cond: &ast.VariableLookup{Name: "x"},
			Body: []ast.Statement{
				&ast.Assignment{Target: &ast.VariableLookup{Name: "y"}, Value: &ast.Int{Value: 2}},
			},
		},
	})
	runAnalyzed(t, g, m)

	xSlot, _ := m.Globals.Lookup("x")
	if xSlot.Flags&ctx.StaticInitialize == 0 {
		t.Fatalf("expected top-level literal assignment to x to be flagged StaticInitialize")
	}
	ySlot, _ := m.Globals.Lookup("y")
	if ySlot.Flags&ctx.StaticInitialize != 0 {
		t.Fatalf("assignment inside an if-body must not be flagged StaticInitialize")
	}
}

func TestFunctionCallPropagatesSingletonReturnType(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	fn := &ast.FunctionDefinition{
		Name: "f",
		Body: []ast.Statement{
			&ast.Return{Value: &ast.Int{Value: 7}},
		},
	}
	call := &ast.FunctionCall{Callee: &ast.VariableLookup{Name: "f"}}
	m := newModule(g, "m", []ast.Statement{
		fn,
		&ast.Assignment{Target: &ast.VariableLookup{Name: "r"}, Value: call},
	})
	runAnalyzed(t, g, m)

	if !call.HasCalleeFunction || call.CalleeFunctionID != fn.ID {
		t.Fatalf("call site did not resolve to function %d: %+v", fn.ID, call)
	}
	slot, _ := m.Globals.Lookup("r")
	if slot.Value.Kind != value.Int {
		t.Fatalf("r = %#v, want Int propagated from f's return", slot.Value)
	}
}

func TestConstructorImplicitlyReturnsInstanceType(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	initFn := &ast.FunctionDefinition{
		Name: "__init__",
		Args: []ast.Param{{Name: "self"}},
		Body: []ast.Statement{
			&ast.Assignment{
				Target: &ast.AttributeLookup{Base: &ast.VariableLookup{Name: "self"}, Attr: "n"},
				Value:  &ast.Int{Value: 0},
			},
		},
	}
	cls := &ast.ClassDefinition{Name: "C", Body: []ast.Statement{initFn}}
	m := newModule(g, "m", []ast.Statement{cls})
	runAnalyzed(t, g, m)

	fc, ok := g.Function(initFn.ID)
	if !ok {
		t.Fatalf("__init__ function context not registered")
	}
	rt := fc.ReturnTypes()
	if len(rt) != 1 || rt[0].Kind != value.Instance || rt[0].ID != cls.ID {
		t.Fatalf("__init__ return types = %#v, want a single Instance(%d)", rt, cls.ID)
	}
}

func TestConstructorReturningValueIsError(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	initFn := &ast.FunctionDefinition{
		Name: "__init__",
		Args: []ast.Param{{Name: "self"}},
		Body: []ast.Statement{
			&ast.Return{Value: &ast.Int{Value: 1}},
		},
	}
	cls := &ast.ClassDefinition{Name: "C", Body: []ast.Statement{initFn}}
	m := newModule(g, "m", []ast.Statement{cls})

	if err := annotate.New(nil).Annotate(g, m); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if err := New(nil).Analyze(g, m); err == nil {
		t.Fatalf("expected error: __init__ must not return a value")
	}
}

func TestSelfAttributeAssignmentIsReadableThroughInstance(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	initFn := &ast.FunctionDefinition{
		Name: "__init__",
		Args: []ast.Param{{Name: "self"}},
		Body: []ast.Statement{
			&ast.Assignment{
				Target: &ast.AttributeLookup{Base: &ast.VariableLookup{Name: "self"}, Attr: "n"},
				Value:  &ast.Int{Value: 42},
			},
		},
	}
	cls := &ast.ClassDefinition{Name: "C", Body: []ast.Statement{initFn}}
	m := newModule(g, "m", []ast.Statement{cls})
	runAnalyzed(t, g, m)

	cc, ok := g.Class(cls.ID)
	if !ok {
		t.Fatalf("class context not registered")
	}
	v, ok := cc.LookupAttribute("n")
	if !ok || v.Kind != value.Int {
		t.Fatalf("attribute n = %#v, ok=%v, want known/type-only Int", v, ok)
	}
}

func TestUnannotatedDefaultArgumentTypesParameter(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	fn := &ast.FunctionDefinition{
		Name: "f",
		Args: []ast.Param{{Name: "n", Default: &ast.Int{Value: 10}}},
		Body: []ast.Statement{
			&ast.Return{Value: &ast.VariableLookup{Name: "n"}},
		},
	}
	m := newModule(g, "m", []ast.Statement{fn})
	runAnalyzed(t, g, m)

	fc, ok := g.Function(fn.ID)
	if !ok {
		t.Fatalf("function context not registered")
	}
	if fc.Args[0].Type.Kind != value.Int {
		t.Fatalf("arg 0 type = %#v, want Int from its default", fc.Args[0].Type)
	}
}

func TestMismatchedDefaultAndAnnotationIsError(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	fn := &ast.FunctionDefinition{
		Name: "f",
		Args: []ast.Param{{
			Name:       "n",
			Default:    &ast.Int{Value: 10},
			Annotation: &ast.VariableLookup{Name: "str"},
		}},
	}
	m := newModule(g, "m", []ast.Statement{fn})

	if err := annotate.New(nil).Annotate(g, m); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if err := New(nil).Analyze(g, m); err == nil {
		t.Fatalf("expected error: default value type does not match annotation")
	}
}
