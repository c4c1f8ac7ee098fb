package annotate

import (
	"testing"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/value"
)

func newModule(g *ctx.GlobalContext, name string, body []ast.Statement) *ctx.ModuleContext {
	m := g.GetOrCreateModule(name, nil)
	m.AST = &ast.Module{Body: body}
	return m
}

func TestFunctionDefinitionAssignsIDAndRecordsLocals(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	fn := &ast.FunctionDefinition{
		Name: "f",
		Args: []ast.Param{{Name: "x"}},
		Body: []ast.Statement{
			&ast.Assignment{
				Target: &ast.VariableLookup{Name: "y"},
				Value:  &ast.VariableLookup{Name: "x"},
			},
		},
	}
	m := newModule(g, "m", []ast.Statement{fn})

	if err := New(nil).Annotate(g, m); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if fn.ID == 0 {
		t.Fatalf("function id not assigned")
	}
	fc, ok := g.Function(fn.ID)
	if !ok {
		t.Fatalf("function context not registered")
	}
	if _, ok := fc.Locals["x"]; !ok {
		t.Fatalf("parameter x not recorded as a local")
	}
	if _, ok := fc.Locals["y"]; !ok {
		t.Fatalf("assigned name y not recorded as a local")
	}
	if _, ok := m.Globals.Lookup("f"); !ok {
		t.Fatalf("function name f not bound as a module global")
	}
}

func TestInitConstructorSharesClassID(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	initFn := &ast.FunctionDefinition{
		Name: "__init__",
		Args: []ast.Param{{Name: "self"}},
		Body: []ast.Statement{
			&ast.Assignment{
				Target: &ast.AttributeLookup{Base: &ast.VariableLookup{Name: "self"}, Attr: "x"},
				Value:  &ast.Int{},
			},
			&ast.Assignment{
				Target: &ast.AttributeLookup{Base: &ast.VariableLookup{Name: "self"}, Attr: "x"},
				Value:  &ast.Int{},
			},
		},
	}
	cls := &ast.ClassDefinition{Name: "C", Body: []ast.Statement{initFn}}
	m := newModule(g, "m", []ast.Statement{cls})

	if err := New(nil).Annotate(g, m); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if initFn.ID != cls.ID {
		t.Fatalf("__init__ id %d != class id %d", initFn.ID, cls.ID)
	}
	cc, ok := g.Class(cls.ID)
	if !ok {
		t.Fatalf("class context not registered")
	}
	if !cc.HasAttribute("x") {
		t.Fatalf("self.x was not recorded as a class attribute")
	}
	if len(cc.Attributes) != 1 {
		t.Fatalf("repeated self.x write should not duplicate the attribute, got %d", len(cc.Attributes))
	}
}

func TestGlobalStatementAfterLocalWriteIsError(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	fn := &ast.FunctionDefinition{
		Name: "f",
		Body: []ast.Statement{
			&ast.Assignment{Target: &ast.VariableLookup{Name: "x"}, Value: &ast.Int{}},
			&ast.Global{Names: []string{"x"}},
		},
	}
	m := newModule(g, "m", []ast.Statement{fn})

	if err := New(nil).Annotate(g, m); err == nil {
		t.Fatalf("expected error for global statement following a local write")
	}
}

func TestGlobalStatementOutsideFunctionIsError(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newModule(g, "m", []ast.Statement{&ast.Global{Names: []string{"x"}}})

	if err := New(nil).Annotate(g, m); err == nil {
		t.Fatalf("expected error for global statement outside a function")
	}
}

func TestYieldOutsideFunctionIsError(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newModule(g, "m", []ast.Statement{&ast.Yield{}})

	if err := New(nil).Annotate(g, m); err == nil {
		t.Fatalf("expected error for yield outside a function")
	}
}

func TestBuiltinNameShadowIsRejected(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newModule(g, "m", []ast.Statement{
		&ast.Assignment{Target: &ast.VariableLookup{Name: "object"}, Value: &ast.Int{}},
	})

	if err := New(nil).Annotate(g, m); err == nil {
		t.Fatalf("expected error writing to builtin name `object`")
	}
}

func TestImportPlainBindsModuleValue(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newModule(g, "m", []ast.Statement{
		&ast.Import{Names: []ast.ImportName{{Path: "os"}}},
	})

	if err := New(nil).Annotate(g, m); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	slot, ok := m.Globals.Lookup("os")
	if !ok {
		t.Fatalf("import did not bind name `os`")
	}
	if slot.Value.Kind != value.Module || slot.Value.Name != "os" {
		t.Fatalf("os binding = %#v, want Module(os)", slot.Value)
	}
}

func TestImportStarWithoutAdvancerIsError(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newModule(g, "m", []ast.Statement{
		&ast.Import{From: "pkg", Star: true},
	})

	if err := New(nil).Annotate(g, m); err == nil {
		t.Fatalf("expected error: import * with no advancer configured")
	}
}

func TestImportStarCopiesSourceGlobals(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	src := newModule(g, "pkg", nil)
	src.Globals.Define("helper", ctx.Mutable)
	src.Phase = ctx.Annotated

	advance := func(g *ctx.GlobalContext, m *ctx.ModuleContext, target ctx.Phase) error {
		return nil // already annotated for this test
	}

	m := newModule(g, "m", []ast.Statement{
		&ast.Import{From: "pkg", Star: true},
	})

	if err := New(Advancer(advance)).Annotate(g, m); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if _, ok := m.Globals.Lookup("helper"); !ok {
		t.Fatalf("import * did not copy `helper` from the source module")
	}
}

func TestClassInheritanceMergesParentAttributesAsPrefix(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	parentInit := &ast.FunctionDefinition{
		Name: "__init__",
		Args: []ast.Param{{Name: "self"}},
		Body: []ast.Statement{
			&ast.Assignment{
				Target: &ast.AttributeLookup{Base: &ast.VariableLookup{Name: "self"}, Attr: "base_attr"},
				Value:  &ast.Int{},
			},
		},
	}
	parent := &ast.ClassDefinition{Name: "Base", Body: []ast.Statement{parentInit}}

	childInit := &ast.FunctionDefinition{
		Name: "__init__",
		Args: []ast.Param{{Name: "self"}},
		Body: []ast.Statement{
			&ast.Assignment{
				Target: &ast.AttributeLookup{Base: &ast.VariableLookup{Name: "self"}, Attr: "child_attr"},
				Value:  &ast.Int{},
			},
		},
	}
	child := &ast.ClassDefinition{Name: "Child", Parent: "Base", Body: []ast.Statement{childInit}}

	m := newModule(g, "m", []ast.Statement{parent, child})

	if err := New(nil).Annotate(g, m); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	cc, ok := g.Class(child.ID)
	if !ok {
		t.Fatalf("child class context not registered")
	}
	if len(cc.Attributes) != 2 {
		t.Fatalf("expected 2 attributes (1 inherited + 1 own), got %d", len(cc.Attributes))
	}
	if cc.Attributes[0].Name != "base_attr" {
		t.Fatalf("expected inherited attribute to sit first, got %q", cc.Attributes[0].Name)
	}
	if cc.Attributes[1].Name != "child_attr" {
		t.Fatalf("expected own attribute to sit after the inherited prefix, got %q", cc.Attributes[1].Name)
	}
}

func TestClassWithUnknownParentIsError(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	cls := &ast.ClassDefinition{Name: "Child", Parent: "Nope"}
	m := newModule(g, "m", []ast.Statement{cls})

	if err := New(nil).Annotate(g, m); err == nil {
		t.Fatalf("expected error for an unknown parent class")
	}
}

func TestClassInsideFunctionIsError(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	fn := &ast.FunctionDefinition{
		Name: "f",
		Body: []ast.Statement{
			&ast.ClassDefinition{Name: "C"},
		},
	}
	m := newModule(g, "m", []ast.Statement{fn})

	if err := New(nil).Annotate(g, m); err == nil {
		t.Fatalf("expected error declaring a class inside a function")
	}
}

func TestFunctionCallsGetDistinctSplitIDs(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	call1 := &ast.FunctionCall{Callee: &ast.VariableLookup{Name: "f"}}
	call2 := &ast.FunctionCall{Callee: &ast.VariableLookup{Name: "f"}}
	m := newModule(g, "m", []ast.Statement{
		&ast.ExpressionStatement{Expr: call1},
		&ast.ExpressionStatement{Expr: call2},
	})

	if err := New(nil).Annotate(g, m); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if call1.SplitID == call2.SplitID {
		t.Fatalf("expected distinct split ids, got %d and %d", call1.SplitID, call2.SplitID)
	}
}
