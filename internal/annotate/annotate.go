// Package annotate implements the annotation visitor: a pre-order walk
// over a module's AST whose only job is name and structure discovery. It
// assigns function and class ids, records every write of a name into the
// nearest enclosing scope, and validates the handful of rules that only
// depend on lexical structure (global/yield placement, builtins shadowing,
// duplicate class attributes).
//
// Typing and constant folding are the analysis visitor's job, not this
// one's: every name this package creates is seeded with
// value.Indeterminate_(), to be refined later, except that a plain
// `import X [as Y]` binds its name to a Module value directly.
package annotate

import (
	"fmt"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/diag"
	"github.com/bencz/python-jit/internal/value"
)

// Advancer resolves an imported module to at least the given phase. A
// function type rather than a concrete driver keeps the import graph
// acyclic; the phase driver's AdvanceModule satisfies it.
type Advancer func(g *ctx.GlobalContext, m *ctx.ModuleContext, target ctx.Phase) error

// Visitor is the annotation visitor. The zero value is usable but will
// fail on any import that needs to pull in another module's globals; pass
// an Advancer via New to support those.
type Visitor struct {
	Advance Advancer
}

// New builds a Visitor. advance may be nil for inputs with no imports.
func New(advance Advancer) *Visitor {
	return &Visitor{Advance: advance}
}

// Annotate runs the visitor over m's AST, populating g's function/class
// registries and m's global table as a side effect.
func (v *Visitor) Annotate(g *ctx.GlobalContext, m *ctx.ModuleContext) error {
	if m.AST == nil {
		return fmt.Errorf("annotate: module %q has no AST to annotate", m.Name)
	}
	w := &walker{g: g, m: m, advance: v.Advance}
	return w.visitBlock(m.AST.Body)
}

// walker carries the scope state threaded through one Annotate call: the
// enclosing function (nil at module scope), the enclosing class id (0
// outside a class body), and whether we're inside that class's __init__.
type walker struct {
	g       *ctx.GlobalContext
	m       *ctx.ModuleContext
	advance Advancer

	fn          *ctx.FunctionContext
	classID     int
	inClassInit bool
}

func (w *walker) errf(pos ast.Offset, format string, args ...any) error {
	src := ""
	if w.m.Source != nil {
		src = *w.m.Source
	}
	return diag.New(diag.Annotation, w.m.Name, src, int(pos), format, args...)
}

func (w *walker) nextSplitID() int {
	if w.fn != nil {
		id := w.fn.NumSplits
		w.fn.NumSplits++
		return id
	}
	id := w.m.RootFragmentNumSplits
	w.m.RootFragmentNumSplits++
	return id
}

// recordWrite records a plain write of name into the nearest enclosing
// scope: a function's locals (unless declared explicit-global), a class
// body's attribute list, or a module global.
func (w *walker) recordWrite(name string, pos ast.Offset) error {
	if name == "" {
		return w.errf(pos, "empty name in assignment target")
	}
	if w.g.IsBuiltinName(name) {
		return w.errf(pos, "can't assign to builtin name %q", name)
	}

	if w.fn != nil {
		if w.fn.ExplicitGlobals[name] {
			w.defineModuleGlobalIfAbsent(name)
			return nil
		}
		if _, exists := w.fn.Locals[name]; !exists {
			w.fn.Locals[name] = value.Indeterminate_()
		}
		return nil
	}

	if w.classID != 0 {
		cls, ok := w.g.Class(w.classID)
		if !ok {
			return w.errf(pos, "internal: no class context for id %d", w.classID)
		}
		if cls.HasAttribute(name) {
			return w.errf(pos, "attribute %q declared multiple times", name)
		}
		cls.AddAttribute(name)
		return nil
	}

	w.defineModuleGlobalIfAbsent(name)
	return nil
}

func (w *walker) defineModuleGlobalIfAbsent(name string) {
	if _, ok := w.m.Globals.Lookup(name); !ok {
		w.m.Globals.Define(name, ctx.Mutable)
	}
}

// recordClassAttributeWrite handles `self.X = ...` inside __init__, where
// repeated writes to the same attribute across statements are tolerated.
func (w *walker) recordClassAttributeWrite(name string, pos ast.Offset) error {
	if name == "" {
		return w.errf(pos, "empty attribute name")
	}
	cls, ok := w.g.Class(w.classID)
	if !ok {
		return w.errf(pos, "internal: no class context for id %d", w.classID)
	}
	if !cls.HasAttribute(name) {
		cls.AddAttribute(name)
	}
	return nil
}

// bindName seeds name with a specific import-derived value rather than a
// generic Indeterminate write; overwriting an existing binding is an
// error (imports must not silently clobber an earlier declaration).
func (w *walker) bindName(name string, v value.Value, pos ast.Offset) error {
	if name == "" {
		return w.errf(pos, "empty name in import binding")
	}
	if w.g.IsBuiltinName(name) {
		return w.errf(pos, "can't assign to builtin name %q", name)
	}

	if w.fn != nil {
		if w.fn.ExplicitGlobals[name] {
			return w.errf(pos, "name %q overwritten by import", name)
		}
		if _, exists := w.fn.Locals[name]; exists {
			return w.errf(pos, "name %q overwritten by import", name)
		}
		w.fn.Locals[name] = v
		return nil
	}

	if _, exists := w.m.Globals.Lookup(name); exists {
		return w.errf(pos, "name %q overwritten by import", name)
	}
	slot := w.m.Globals.Define(name, ctx.Mutable)
	slot.Value = v
	return nil
}

func (w *walker) visitBlock(stmts []ast.Statement) error {
	for _, s := range stmts {
		if err := w.visitStatement(s); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visitStatement(s ast.Statement) error {
	switch n := s.(type) {
	case *ast.ExpressionStatement:
		return w.visitExpression(n.Expr)
	case *ast.Assignment:
		if err := w.visitExpression(n.Value); err != nil {
			return err
		}
		return w.visitAssignTarget(n.Target)
	case *ast.Augment:
		return w.errf(n.Pos(), "augmented assignment is not supported")
	case *ast.Delete:
		return w.errf(n.Pos(), "del statement is not supported")
	case *ast.Import:
		return w.visitImport(n)
	case *ast.Global:
		return w.visitGlobal(n)
	case *ast.Exec:
		return w.errf(n.Pos(), "exec statement is not supported")
	case *ast.Assert:
		if err := w.visitExpression(n.Cond); err != nil {
			return err
		}
		return w.visitExpression(n.Message)
	case *ast.Break:
		return nil
	case *ast.Continue:
		return nil
	case *ast.Return:
		return w.visitExpression(n.Value)
	case *ast.Raise:
		return w.visitExpression(n.Exc)
	case *ast.Yield:
		if w.fn == nil {
			return w.errf(n.Pos(), "yield statement outside of function definition")
		}
		return w.visitExpression(n.Value)
	case *ast.If:
		return w.visitIf(n)
	case *ast.For:
		return w.visitFor(n)
	case *ast.While:
		if err := w.visitExpression(n.Cond); err != nil {
			return err
		}
		return w.visitBlock(n.Body)
	case *ast.Try:
		return w.visitTry(n)
	case *ast.With:
		return w.visitWith(n)
	case *ast.FunctionDefinition:
		return w.visitFunctionDef(n)
	case *ast.ClassDefinition:
		return w.visitClassDef(n)
	default:
		return fmt.Errorf("annotate: unsupported statement %T", s)
	}
}

func (w *walker) visitIf(n *ast.If) error {
	if err := w.visitExpression(n.Cond); err != nil {
		return err
	}
	if err := w.visitBlock(n.Body); err != nil {
		return err
	}
	for _, e := range n.Elifs {
		if err := w.visitExpression(e.Cond); err != nil {
			return err
		}
		if err := w.visitBlock(e.Body); err != nil {
			return err
		}
	}
	return w.visitBlock(n.Else)
}

func (w *walker) visitFor(n *ast.For) error {
	if err := w.visitExpression(n.Iter); err != nil {
		return err
	}
	if err := w.recordWrite(n.Var, n.Pos()); err != nil {
		return err
	}
	return w.visitBlock(n.Body)
}

func (w *walker) visitTry(n *ast.Try) error {
	if err := w.visitBlock(n.Body); err != nil {
		return err
	}
	for _, h := range n.Handlers {
		if h.ExcType != nil {
			if err := w.visitExpression(h.ExcType); err != nil {
				return err
			}
		}
		if h.Bind != "" {
			if err := w.recordWrite(h.Bind, n.Pos()); err != nil {
				return err
			}
		}
		if err := w.visitBlock(h.Body); err != nil {
			return err
		}
	}
	return w.visitBlock(n.Finally)
}

func (w *walker) visitWith(n *ast.With) error {
	if err := w.visitExpression(n.Ctx); err != nil {
		return err
	}
	if n.Var != "" {
		if err := w.recordWrite(n.Var, n.Pos()); err != nil {
			return err
		}
	}
	return w.visitBlock(n.Body)
}

func (w *walker) visitGlobal(n *ast.Global) error {
	if w.fn == nil {
		return w.errf(n.Pos(), "global statement outside of function")
	}
	for _, name := range n.Names {
		if _, exists := w.fn.Locals[name]; exists {
			return w.errf(n.Pos(), "variable %q declared before global statement", name)
		}
		w.fn.ExplicitGlobals[name] = true
	}
	return nil
}

func (w *walker) visitImport(n *ast.Import) error {
	if n.Star {
		imported := w.g.GetOrCreateModule(n.From, nil)
		if w.advance == nil {
			return w.errf(n.Pos(), "import * of %q requires a module advancer", n.From)
		}
		if err := w.advance(w.g, imported, ctx.Annotated); err != nil {
			return err
		}
		for _, name := range imported.Globals.Names() {
			if err := w.bindName(name, value.Indeterminate_(), n.Pos()); err != nil {
				return err
			}
		}
		return nil
	}

	if n.From == "" {
		for _, nm := range n.Names {
			w.g.GetOrCreateModule(nm.Path, nil)
			bound := nm.As
			if bound == "" {
				bound = nm.Path
			}
			if err := w.bindName(bound, value.ModuleValue(nm.Path), n.Pos()); err != nil {
				return err
			}
		}
		return nil
	}

	imported := w.g.GetOrCreateModule(n.From, nil)
	if w.advance == nil {
		return w.errf(n.Pos(), "from %q import requires a module advancer", n.From)
	}
	if err := w.advance(w.g, imported, ctx.Annotated); err != nil {
		return err
	}
	for _, nm := range n.Names {
		if _, ok := imported.Globals.Lookup(nm.Path); !ok {
			return w.errf(n.Pos(), "imported name %q not defined in source module %q", nm.Path, n.From)
		}
		bound := nm.As
		if bound == "" {
			bound = nm.Path
		}
		if err := w.bindName(bound, value.Indeterminate_(), n.Pos()); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visitAssignTarget(t ast.LValue) error {
	switch tt := t.(type) {
	case *ast.VariableLookup:
		return w.recordWrite(tt.Name, tt.Pos())
	case *ast.AttributeLookup:
		if w.inClassInit {
			if err := w.visitExpression(tt.Base); err != nil {
				return err
			}
			if vl, ok := tt.Base.(*ast.VariableLookup); ok && vl.Name == "self" {
				return w.recordClassAttributeWrite(tt.Attr, tt.Pos())
			}
			return nil
		}
		return w.visitExpression(tt.Base)
	case *ast.ArrayIndex:
		if err := w.visitExpression(tt.Container); err != nil {
			return err
		}
		return w.visitExpression(tt.Index)
	case *ast.TupleTarget:
		for _, sub := range tt.Targets {
			if err := w.visitAssignTarget(sub); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("annotate: unsupported assignment target %T", t)
	}
}

func (w *walker) visitExpression(e ast.Expression) error {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *ast.VariableLookup, *ast.Int, *ast.Float, *ast.Bytes, *ast.Unicode,
		*ast.True, *ast.False, *ast.NoneLiteral:
		return nil
	case *ast.AttributeLookup:
		return w.visitExpression(n.Base)
	case *ast.ArrayIndex:
		if err := w.visitExpression(n.Container); err != nil {
			return err
		}
		return w.visitExpression(n.Index)
	case *ast.ArraySlice:
		if err := w.visitExpression(n.Container); err != nil {
			return err
		}
		if err := w.visitExpression(n.Low); err != nil {
			return err
		}
		return w.visitExpression(n.High)
	case *ast.Unary:
		return w.visitExpression(n.Operand)
	case *ast.Binary:
		if err := w.visitExpression(n.Left); err != nil {
			return err
		}
		return w.visitExpression(n.Right)
	case *ast.Ternary:
		if err := w.visitExpression(n.Cond); err != nil {
			return err
		}
		if err := w.visitExpression(n.Then); err != nil {
			return err
		}
		return w.visitExpression(n.Else)
	case *ast.ListLit:
		return w.visitExpressions(n.Items)
	case *ast.SetLit:
		return w.visitExpressions(n.Items)
	case *ast.TupleLit:
		return w.visitExpressions(n.Items)
	case *ast.DictLit:
		for _, ent := range n.Entries {
			if err := w.visitExpression(ent.Key); err != nil {
				return err
			}
			if err := w.visitExpression(ent.Value); err != nil {
				return err
			}
		}
		return nil
	case *ast.Comprehension:
		return w.visitComprehension(n)
	case *ast.LambdaDefinition:
		return w.visitLambda(n)
	case *ast.FunctionCall:
		return w.visitFunctionCall(n)
	case *ast.TupleTarget:
		return w.visitExpressions(exprsOf(n.Targets))
	case *ast.Yield:
		if w.fn == nil {
			return w.errf(n.Pos(), "yield outside of function definition")
		}
		return w.visitExpression(n.Value)
	default:
		return fmt.Errorf("annotate: unsupported expression %T", e)
	}
}

func exprsOf(targets []ast.LValue) []ast.Expression {
	out := make([]ast.Expression, len(targets))
	for i, t := range targets {
		out[i] = t
	}
	return out
}

func (w *walker) visitExpressions(items []ast.Expression) error {
	for _, it := range items {
		if err := w.visitExpression(it); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visitComprehension(n *ast.Comprehension) error {
	if err := w.visitExpression(n.Iter); err != nil {
		return err
	}
	if err := w.recordWrite(n.For, n.Pos()); err != nil {
		return err
	}
	for _, cond := range n.Ifs {
		if err := w.visitExpression(cond); err != nil {
			return err
		}
	}
	if n.Kind == "dict" {
		if err := w.visitExpression(n.Key); err != nil {
			return err
		}
	}
	return w.visitExpression(n.Element)
}

func (w *walker) visitFunctionCall(n *ast.FunctionCall) error {
	if err := w.visitExpression(n.Callee); err != nil {
		return err
	}
	for _, arg := range n.Args {
		if err := w.visitExpression(arg.Value); err != nil {
			return err
		}
	}
	n.SplitID = w.nextSplitID()
	return nil
}

func (w *walker) visitLambda(a *ast.LambdaDefinition) error {
	id := w.g.NextUserFunctionID()
	a.ID = id
	fn := ctx.NewFunctionContext(id, w.m, 0, fmt.Sprintf("<lambda:%s:%d>", w.m.Name, a.Pos()))
	fn.LambdaAST = a
	w.g.RegisterFunction(fn)

	prevFn, prevInit := w.fn, w.inClassInit
	w.fn, w.inClassInit = fn, false

	for _, p := range a.Args {
		fn.Args = append(fn.Args, ctx.ArgSpec{Name: p.Name, Default: p.Default, Annotation: p.Annotation})
		if err := w.recordWrite(p.Name, a.Pos()); err != nil {
			return err
		}
	}
	if a.Varargs != "" {
		fn.VarargsName = a.Varargs
		if err := w.recordWrite(a.Varargs, a.Pos()); err != nil {
			return err
		}
	}
	if a.Varkwargs != "" {
		fn.VarkwargsName = a.Varkwargs
		if err := w.recordWrite(a.Varkwargs, a.Pos()); err != nil {
			return err
		}
	}

	if err := w.visitExpression(a.Body); err != nil {
		return err
	}

	w.fn, w.inClassInit = prevFn, prevInit
	return nil
}

func (w *walker) visitFunctionDef(a *ast.FunctionDefinition) error {
	isCtor := w.classID != 0 && w.fn == nil && a.Name == "__init__"

	classIDForFn := 0
	if w.classID != 0 && w.fn == nil {
		classIDForFn = w.classID
	}

	var id int
	if isCtor {
		id = w.classID
	} else {
		id = w.g.NextUserFunctionID()
	}
	a.ID = id

	fn := ctx.NewFunctionContext(id, w.m, classIDForFn, a.Name)
	fn.AST = a
	w.g.RegisterFunction(fn)

	if isCtor {
		if len(a.Args) == 0 {
			return w.errf(a.Pos(), "__init__ must take at least one argument")
		}
		if a.Args[0].Name != "self" {
			return w.errf(a.Pos(), "the first argument to __init__ must be named `self`")
		}
	}

	prevFn, prevInit := w.fn, w.inClassInit
	w.fn, w.inClassInit = fn, isCtor

	for _, p := range a.Args {
		fn.Args = append(fn.Args, ctx.ArgSpec{Name: p.Name, Default: p.Default, Annotation: p.Annotation})
		if err := w.recordWrite(p.Name, a.Pos()); err != nil {
			return err
		}
	}
	if a.Varargs != "" {
		fn.VarargsName = a.Varargs
		if err := w.recordWrite(a.Varargs, a.Pos()); err != nil {
			return err
		}
	}
	if a.Varkwargs != "" {
		fn.VarkwargsName = a.Varkwargs
		if err := w.recordWrite(a.Varkwargs, a.Pos()); err != nil {
			return err
		}
	}

	if err := w.visitBlock(a.Body); err != nil {
		return err
	}

	w.fn, w.inClassInit = prevFn, prevInit

	// A method's name does not become an instance-layout attribute: the
	// attribute list describes data cells (self.X writes and class-body
	// assignments), and parent attributes are already merged as a prefix
	// before the body runs. A child overriding an inherited method must
	// not collide with or duplicate the parent's entry; methods stay
	// reachable through their function id instead.
	if classIDForFn != 0 {
		return nil
	}
	return w.recordWrite(a.Name, a.Pos())
}

func (w *walker) visitClassDef(a *ast.ClassDefinition) error {
	if w.fn != nil {
		return w.errf(a.Pos(), "classes may not be declared within functions")
	}

	id := w.g.NextUserFunctionID()
	a.ID = id
	cls := ctx.NewClassContext(id, w.m, a.Name)
	cls.AST = a
	w.g.RegisterClass(cls)

	if a.Parent != "" {
		parent, ok := w.g.ClassByName(w.m, a.Parent)
		if !ok {
			return w.errf(a.Pos(), "unknown parent class %q", a.Parent)
		}
		cls.InheritFrom(parent)
	}

	prevClassID := w.classID
	w.classID = id
	if err := w.visitBlock(a.Body); err != nil {
		return err
	}
	w.classID = prevClassID

	return w.recordWrite(a.Name, a.Pos())
}
