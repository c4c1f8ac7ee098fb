// Package analyze implements the analysis visitor: the second pre-order
// walk over an already-annotated module's AST. Where the annotation
// visitor only discovers names and structure, this visitor infers types,
// constant-folds literal expressions, resolves attribute and call-site
// targets, and enforces the pipeline's monotonic-type rule for every
// write.
//
// Children are visited before their parents, so each evalExpr returns
// the sub-expression's value for the enclosing node to consume.
package analyze

import (
	"fmt"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/diag"
	"github.com/bencz/python-jit/internal/value"
)

// Advancer resolves an imported module to at least the given phase; the
// phase driver's AdvanceModule satisfies it.
type Advancer func(g *ctx.GlobalContext, m *ctx.ModuleContext, target ctx.Phase) error

// Visitor is the analysis visitor.
type Visitor struct {
	Advance Advancer
}

// New builds a Visitor. advance may be nil for modules with no imports.
func New(advance Advancer) *Visitor {
	return &Visitor{Advance: advance}
}

// Analyze runs the visitor over m's AST. m must already be Annotated: every
// name it writes was discovered and seeded Indeterminate by
// internal/annotate.
func (v *Visitor) Analyze(g *ctx.GlobalContext, m *ctx.ModuleContext) error {
	if m.AST == nil {
		return fmt.Errorf("analyze: module %q has no AST to analyze", m.Name)
	}
	w := &walker{g: g, m: m, advance: v.Advance, atTopLevel: true}
	return w.visitBlock(m.AST.Body)
}

// walker carries the scope state threaded through one Analyze call.
type walker struct {
	g       *ctx.GlobalContext
	m       *ctx.ModuleContext
	advance Advancer

	fn         *ctx.FunctionContext
	classID    int
	sawReturn  bool
	atTopLevel bool

	// lastAttrClassBase is set by evalAttributeLookup when the immediate
	// base of an AttributeLookup evaluated to a Class, and consumed by
	// the very next FunctionCall to recognize classmethod dispatch.
	lastAttrClassBase bool
}

func (w *walker) errf(pos ast.Offset, format string, args ...any) error {
	src := ""
	if w.m.Source != nil {
		src = *w.m.Source
	}
	return diag.New(diag.Analysis, w.m.Name, src, int(pos), format, args...)
}

// withNestedBlock visits stmts with atTopLevel forced false, restoring the
// previous value afterward. If/For/While/Try/With bodies are never eligible
// for static-initialize promotion even when they sit directly in module
// scope, because a write inside one is not "a literal assignment with no
// intervening control flow".
func (w *walker) withNestedBlock(stmts []ast.Statement) error {
	prev := w.atTopLevel
	w.atTopLevel = false
	err := w.visitBlock(stmts)
	w.atTopLevel = prev
	return err
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
		_, err := w.evalExpr(n.Expr)
		return err
	case *ast.Assignment:
		v, err := w.evalExpr(n.Value)
		if err != nil {
			return err
		}
		return w.assign(n.Target, v)
	case *ast.Augment:
		return w.errf(n.Pos(), "augmented assignment is not supported")
	case *ast.Delete:
		return w.errf(n.Pos(), "del statement is not supported")
	case *ast.Import:
		return w.visitImport(n)
	case *ast.Global:
		return nil // placement already validated by the annotation visitor
	case *ast.Exec:
		return w.errf(n.Pos(), "exec statement is not supported")
	case *ast.Assert:
		if _, err := w.evalExpr(n.Cond); err != nil {
			return err
		}
		_, err := w.evalExpr(n.Message)
		return err
	case *ast.Break, *ast.Continue:
		return nil
	case *ast.Return:
		return w.visitReturn(n)
	case *ast.Raise:
		_, err := w.evalExpr(n.Exc)
		return err
	case *ast.Yield:
		_, err := w.evalExpr(n.Value)
		return err
	case *ast.If:
		return w.visitIf(n)
	case *ast.For:
		return w.visitFor(n)
	case *ast.While:
		if _, err := w.evalExpr(n.Cond); err != nil {
			return err
		}
		return w.withNestedBlock(n.Body)
	case *ast.Try:
		return w.visitTry(n)
	case *ast.With:
		return w.visitWith(n)
	case *ast.FunctionDefinition:
		return w.visitFunctionDef(n)
	case *ast.ClassDefinition:
		return w.visitClassDef(n)
	default:
		return fmt.Errorf("analyze: unsupported statement %T", s)
	}
}

func (w *walker) visitReturn(n *ast.Return) error {
	if w.fn == nil {
		if n.Value == nil {
			return nil
		}
		_, err := w.evalExpr(n.Value)
		return err
	}
	if w.fn.IsConstructor() {
		if n.Value != nil {
			return w.errf(n.Pos(), "__init__ must not return a value")
		}
		w.sawReturn = true
		return nil
	}
	if n.Value == nil {
		w.fn.AddReturnType(value.NoneValue())
		w.sawReturn = true
		return nil
	}
	v, err := w.evalExpr(n.Value)
	if err != nil {
		return err
	}
	w.fn.AddReturnType(v)
	w.sawReturn = true
	return nil
}

// visitIf folds the condition when known, tagging AlwaysTrue/AlwaysFalse
// and skipping the unreachable branches. With an unknown condition every
// branch is visited for its typing side effects.
func (w *walker) visitIf(n *ast.If) error {
	cond, err := w.evalExpr(n.Cond)
	if err != nil {
		return err
	}
	truth, known := value.TruthValue(cond)
	if !known {
		if err := w.withNestedBlock(n.Body); err != nil {
			return err
		}
		for _, e := range n.Elifs {
			if _, err := w.evalExpr(e.Cond); err != nil {
				return err
			}
			if err := w.withNestedBlock(e.Body); err != nil {
				return err
			}
		}
		if n.HasElse {
			return w.withNestedBlock(n.Else)
		}
		return nil
	}

	if truth {
		n.AlwaysTrue = true
		n.ElseUnreachable = true
		return w.withNestedBlock(n.Body)
	}
	n.AlwaysFalse = true

	for i := range n.Elifs {
		e := &n.Elifs[i]
		ec, err := w.evalExpr(e.Cond)
		if err != nil {
			return err
		}
		et, eknown := value.TruthValue(ec)
		if !eknown {
			if err := w.withNestedBlock(e.Body); err != nil {
				return err
			}
			continue
		}
		if et {
			return w.withNestedBlock(e.Body)
		}
	}
	if n.HasElse {
		return w.withNestedBlock(n.Else)
	}
	return nil
}

// iterationElementType determines a for-loop variable's type from the
// iterable's value.
func iterationElementType(iter value.Value) (value.Value, error) {
	switch iter.Kind {
	case value.List, value.Tuple, value.Set:
		if len(iter.Ext) == 1 {
			return value.ClearValue(iter.Ext[0]), nil
		}
		return value.Indeterminate_(), nil
	case value.Dict:
		if len(iter.Ext) == 2 {
			return value.ClearValue(iter.Ext[0]), nil
		}
		return value.Indeterminate_(), nil
	case value.Bytes:
		return value.IntType(), nil
	case value.Unicode:
		return value.UnicodeType(), nil
	case value.Indeterminate:
		return value.Indeterminate_(), nil
	default:
		return value.Value{}, fmt.Errorf("%s is not iterable", iter.Kind)
	}
}

func (w *walker) visitFor(n *ast.For) error {
	iter, err := w.evalExpr(n.Iter)
	if err != nil {
		return err
	}
	elem, err := iterationElementType(iter)
	if err != nil {
		return w.errf(n.Pos(), "%s", err)
	}
	if err := w.assignName(n.Var, elem, n.Pos()); err != nil {
		return err
	}
	return w.withNestedBlock(n.Body)
}

func (w *walker) visitTry(n *ast.Try) error {
	if err := w.withNestedBlock(n.Body); err != nil {
		return err
	}
	for _, h := range n.Handlers {
		bindType := value.Indeterminate_()
		if h.ExcType != nil {
			excVal, err := w.evalExpr(h.ExcType)
			if err != nil {
				return err
			}
			if excVal.Kind == value.Class {
				bindType = value.InstanceType(excVal.ID)
			}
		}
		if h.Bind != "" {
			if err := w.assignName(h.Bind, bindType, n.Pos()); err != nil {
				return err
			}
		}
		if err := w.withNestedBlock(h.Body); err != nil {
			return err
		}
	}
	return w.withNestedBlock(n.Finally)
}

func (w *walker) visitWith(n *ast.With) error {
	if _, err := w.evalExpr(n.Ctx); err != nil {
		return err
	}
	if n.Var != "" {
		if err := w.assignName(n.Var, value.Indeterminate_(), n.Pos()); err != nil {
			return err
		}
	}
	return w.withNestedBlock(n.Body)
}

func (w *walker) visitImport(n *ast.Import) error {
	if n.Star {
		imported := w.g.GetOrCreateModule(n.From, nil)
		if w.advance != nil {
			if err := w.advance(w.g, imported, ctx.Analyzed); err != nil {
				return err
			}
		}
		for _, name := range imported.Globals.Names() {
			slot, _ := imported.Globals.Lookup(name)
			if err := w.assignName(name, slot.Value, n.Pos()); err != nil {
				return err
			}
		}
		return nil
	}

	if n.From == "" {
		for _, nm := range n.Names {
			target := w.g.GetOrCreateModule(nm.Path, nil)
			if w.advance != nil {
				if err := w.advance(w.g, target, ctx.Analyzed); err != nil {
					return err
				}
			}
		}
		return nil
	}

	imported := w.g.GetOrCreateModule(n.From, nil)
	if w.advance != nil {
		if err := w.advance(w.g, imported, ctx.Analyzed); err != nil {
			return err
		}
	}
	for _, nm := range n.Names {
		slot, ok := imported.Globals.Lookup(nm.Path)
		if !ok {
			return w.errf(n.Pos(), "imported name %q not defined in source module %q", nm.Path, n.From)
		}
		bound := nm.As
		if bound == "" {
			bound = nm.Path
		}
		if err := w.assignName(bound, slot.Value, n.Pos()); err != nil {
			return err
		}
	}
	return nil
}

// resolveArgTypes assigns each of fn's already-discovered arguments a
// Value, in precedence order: the "self" rule, the default's own type
// (cross-checked against an annotation when both are present), the
// annotation, else Indeterminate.
func (w *walker) resolveArgTypes(fn *ctx.FunctionContext, pos ast.Offset) error {
	for i := range fn.Args {
		arg := &fn.Args[i]
		var t value.Value
		switch {
		case i == 0 && fn.ClassID != 0:
			t = value.InstanceType(fn.ClassID)
		case arg.Default != nil:
			dv, err := w.evalExpr(arg.Default)
			if err != nil {
				return w.errf(pos, "parameter %q: unresolvable default value: %v", arg.Name, err)
			}
			t = dv
			if arg.Annotation != nil {
				at := w.typeForAnnotation(arg.Annotation)
				if !value.TypesEqual(dv, at) {
					return w.errf(pos, "parameter %q: default value type %s does not match annotation %s", arg.Name, dv.Kind, at.Kind)
				}
			}
		case arg.Annotation != nil:
			t = w.typeForAnnotation(arg.Annotation)
		default:
			t = value.Indeterminate_()
		}
		arg.Type = t
		fn.Locals[arg.Name] = t
	}
	return nil
}

// typeForAnnotation resolves a type annotation expression to a type-only
// Value: a builtin type name, or a name bound to a user class in the
// current module's globals. An unrecognized annotation yields
// Indeterminate rather than a hard error.
func (w *walker) typeForAnnotation(e ast.Expression) value.Value {
	vl, ok := e.(*ast.VariableLookup)
	if !ok {
		return value.Indeterminate_()
	}
	switch vl.Name {
	case "int":
		return value.IntType()
	case "float":
		return value.FloatType()
	case "bool":
		return value.BoolType()
	case "bytes":
		return value.BytesType()
	case "str", "unicode":
		return value.UnicodeType()
	case "list":
		return value.EmptyListType()
	case "dict":
		return value.EmptyDictType()
	case "set":
		return value.EmptySetType()
	case "tuple":
		return value.EmptyTupleType()
	}
	if slot, ok := w.m.Globals.Lookup(vl.Name); ok && slot.Value.Kind == value.Class {
		return value.InstanceType(slot.Value.ID)
	}
	return value.Indeterminate_()
}

func (w *walker) visitFunctionDef(a *ast.FunctionDefinition) error {
	fn, ok := w.g.Function(a.ID)
	if !ok {
		return w.errf(a.Pos(), "internal: no function context registered for %q", a.Name)
	}

	// Bind the name before the body so a recursive call inside it resolves
	// to a known callee id.
	if err := w.assignName(a.Name, value.FunctionValue(a.ID), a.Pos()); err != nil {
		return err
	}

	prevFn, prevSawReturn, prevTop := w.fn, w.sawReturn, w.atTopLevel
	w.fn, w.sawReturn, w.atTopLevel = fn, false, false

	restore := func() { w.fn, w.sawReturn, w.atTopLevel = prevFn, prevSawReturn, prevTop }

	if err := w.resolveArgTypes(fn, a.Pos()); err != nil {
		restore()
		return err
	}
	if a.ReturnType != nil {
		rt := w.typeForAnnotation(a.ReturnType)
		fn.AnnotatedReturn = &rt
	}

	if err := w.visitBlock(a.Body); err != nil {
		restore()
		return err
	}

	if fn.IsConstructor() {
		fn.AddReturnType(value.InstanceType(fn.ClassID))
	} else if !w.sawReturn {
		fn.AddReturnType(value.NoneValue())
	}

	if fn.AnnotatedReturn != nil && !fn.IsConstructor() {
		for _, rtv := range fn.ReturnTypes() {
			if rtv.Kind == value.Indeterminate {
				continue
			}
			score, err := value.MatchValueToType(*fn.AnnotatedReturn, rtv, w.g.IsSubtype)
			if err != nil || score < 0 {
				restore()
				return w.errf(a.Pos(), "function %q: return type %s does not match annotated return type %s", a.Name, rtv.Kind, fn.AnnotatedReturn.Kind)
			}
		}
	}

	restore()
	return nil
}

func (w *walker) visitClassDef(a *ast.ClassDefinition) error {
	if _, ok := w.g.Class(a.ID); !ok {
		return w.errf(a.Pos(), "internal: no class context registered for %q", a.Name)
	}

	// Bind the class name before the body so a method referencing its own
	// class (construction, classmethod dispatch) resolves to a known id.
	if err := w.assignName(a.Name, value.ClassValue(a.ID), a.Pos()); err != nil {
		return err
	}

	// Parent attribute prefixing is already done: the annotation visitor
	// calls ClassContext.InheritFrom before this class's own attributes
	// exist, which InheritFrom requires.
	prevClassID, prevTop := w.classID, w.atTopLevel
	w.classID, w.atTopLevel = a.ID, false
	err := w.visitBlock(a.Body)
	w.classID, w.atTopLevel = prevClassID, prevTop
	return err
}

// assign routes a write to its target through the monotonic-type rule.
func (w *walker) assign(target ast.LValue, v value.Value) error {
	switch t := target.(type) {
	case *ast.VariableLookup:
		return w.assignName(t.Name, v, t.Pos())
	case *ast.AttributeLookup:
		baseVal, err := w.evalExpr(t.Base)
		if err != nil {
			return err
		}
		if baseVal.Kind != value.Instance {
			return nil
		}
		cls, ok := w.g.Class(baseVal.ID)
		if !ok || !cls.HasAttribute(t.Attr) {
			return nil
		}
		get := func() (value.Value, bool) { return cls.LookupAttribute(t.Attr) }
		set := func(nv value.Value) { cls.SetAttributeType(t.Attr, nv) }
		return w.recordAssignGeneric(get, set, v, t.Attr, t.Pos())
	case *ast.ArrayIndex:
		if _, err := w.evalExpr(t.Container); err != nil {
			return err
		}
		_, err := w.evalExpr(t.Index)
		return err
	case *ast.TupleTarget:
		for _, sub := range t.Targets {
			if err := w.assign(sub, value.Indeterminate_()); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("analyze: unsupported assignment target %T", target)
	}
}

func (w *walker) assignName(name string, v value.Value, pos ast.Offset) error {
	if w.fn != nil {
		if w.fn.ExplicitGlobals[name] {
			return w.assignModuleGlobal(name, v, pos)
		}
		get := func() (value.Value, bool) { ov, ok := w.fn.Locals[name]; return ov, ok }
		set := func(nv value.Value) { w.fn.Locals[name] = nv }
		return w.recordAssignGeneric(get, set, v, name, pos)
	}
	if w.classID != 0 {
		cls, ok := w.g.Class(w.classID)
		if !ok {
			return w.errf(pos, "internal: missing class context for id %d", w.classID)
		}
		get := func() (value.Value, bool) { return cls.LookupAttribute(name) }
		set := func(nv value.Value) { cls.SetAttributeType(name, nv) }
		return w.recordAssignGeneric(get, set, v, name, pos)
	}
	return w.assignModuleGlobal(name, v, pos)
}

func (w *walker) assignModuleGlobal(name string, v value.Value, pos ast.Offset) error {
	slot, ok := w.m.Globals.Lookup(name)
	if !ok {
		slot = w.m.Globals.Define(name, ctx.Mutable)
	}
	get := func() (value.Value, bool) { return slot.Value, true }
	set := func(nv value.Value) { slot.Value = nv }
	if err := w.recordAssignGeneric(get, set, v, name, pos); err != nil {
		return err
	}
	if w.atTopLevel && slot.Value.Known {
		slot.Flags |= ctx.StaticInitialize
	}
	return nil
}

// recordAssignGeneric enforces the monotonic-type rule: the first write
// to a slot replaces Indeterminate outright; every later write must keep
// the same type, demoting the slot to type-only the moment its known
// value would otherwise change.
func (w *walker) recordAssignGeneric(get func() (value.Value, bool), set func(value.Value), newVal value.Value, name string, pos ast.Offset) error {
	old, exists := get()
	if !exists || old.Kind == value.Indeterminate {
		set(newVal)
		return nil
	}
	if !value.TypesEqual(old, newVal) {
		return w.errf(pos, "cannot change type of %q from %s to %s", name, old.Kind, newVal.Kind)
	}
	if old.Known && (!newVal.Known || !value.Equal(old, newVal)) {
		set(value.ClearValue(old))
	}
	return nil
}

func (w *walker) evalExpr(e ast.Expression) (value.Value, error) {
	if e == nil {
		return value.Indeterminate_(), nil
	}
	switch n := e.(type) {
	case *ast.Int:
		return value.IntValue(n.Value), nil
	case *ast.Float:
		return value.FloatValue(n.Value), nil
	case *ast.Bytes:
		return value.BytesValue(n.Value), nil
	case *ast.Unicode:
		return value.UnicodeValue(n.Value), nil
	case *ast.True:
		return value.BoolValue(true), nil
	case *ast.False:
		return value.BoolValue(false), nil
	case *ast.NoneLiteral:
		return value.NoneValue(), nil
	case *ast.VariableLookup:
		return w.lookupName(n.Name), nil
	case *ast.AttributeLookup:
		return w.evalAttributeLookup(n)
	case *ast.ArrayIndex:
		return w.evalArrayIndex(n)
	case *ast.ArraySlice:
		return w.evalArraySlice(n)
	case *ast.Unary:
		v, err := w.evalExpr(n.Operand)
		if err != nil {
			return value.Value{}, err
		}
		res, err := value.UnaryOp(n.Op, v)
		if err != nil {
			return value.Value{}, w.errf(n.Pos(), "%s", err)
		}
		return res, nil
	case *ast.Binary:
		l, err := w.evalExpr(n.Left)
		if err != nil {
			return value.Value{}, err
		}
		r, err := w.evalExpr(n.Right)
		if err != nil {
			return value.Value{}, err
		}
		res, err := value.BinaryOp(n.Op, l, r)
		if err != nil {
			return value.Value{}, w.errf(n.Pos(), "%s", err)
		}
		return res, nil
	case *ast.Ternary:
		cond, err := w.evalExpr(n.Cond)
		if err != nil {
			return value.Value{}, err
		}
		then, err := w.evalExpr(n.Then)
		if err != nil {
			return value.Value{}, err
		}
		els, err := w.evalExpr(n.Else)
		if err != nil {
			return value.Value{}, err
		}
		res, err := value.TernaryOp(cond, then, els)
		if err != nil {
			return value.Value{}, w.errf(n.Pos(), "%s", err)
		}
		return res, nil
	case *ast.ListLit:
		items, err := w.evalExprs(n.Items)
		if err != nil {
			return value.Value{}, err
		}
		return value.ListValue(items), nil
	case *ast.SetLit:
		items, err := w.evalExprs(n.Items)
		if err != nil {
			return value.Value{}, err
		}
		return value.SetValue(items), nil
	case *ast.TupleLit:
		items, err := w.evalExprs(n.Items)
		if err != nil {
			return value.Value{}, err
		}
		return value.TupleValue(items), nil
	case *ast.DictLit:
		entries := make([]value.DictEntry, len(n.Entries))
		for i, ent := range n.Entries {
			k, err := w.evalExpr(ent.Key)
			if err != nil {
				return value.Value{}, err
			}
			v, err := w.evalExpr(ent.Value)
			if err != nil {
				return value.Value{}, err
			}
			entries[i] = value.DictEntry{Key: k, Val: v}
		}
		return value.DictValue(entries), nil
	case *ast.Comprehension:
		return w.evalComprehension(n)
	case *ast.LambdaDefinition:
		return w.evalLambda(n)
	case *ast.FunctionCall:
		return w.evalFunctionCall(n)
	case *ast.TupleTarget:
		items := make([]value.Value, len(n.Targets))
		for i, t := range n.Targets {
			v, err := w.evalExpr(t)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.TupleValue(items), nil
	case *ast.Yield:
		_, err := w.evalExpr(n.Value)
		return value.Indeterminate_(), err
	default:
		return value.Value{}, fmt.Errorf("analyze: unsupported expression %T", e)
	}
}

func (w *walker) evalExprs(items []ast.Expression) ([]value.Value, error) {
	out := make([]value.Value, len(items))
	for i, it := range items {
		v, err := w.evalExpr(it)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// lookupName resolves a name read in precedence order: current function
// locals (unless explicit-global), current class body attributes, then
// module globals.
func (w *walker) lookupName(name string) value.Value {
	if w.fn != nil && !w.fn.ExplicitGlobals[name] {
		if v, ok := w.fn.Locals[name]; ok {
			return v
		}
	}
	if w.classID != 0 && w.fn == nil {
		if cls, ok := w.g.Class(w.classID); ok {
			if v, ok := cls.LookupAttribute(name); ok {
				return v
			}
		}
	}
	if slot, ok := w.m.Globals.Lookup(name); ok {
		return slot.Value
	}
	return value.Indeterminate_()
}

// scalarClassID maps a builtin scalar/container Kind to its sentinel
// class id, for attribute lookups on a built-in value.
func scalarClassID(k value.Kind) (int, bool) {
	switch k {
	case value.Bytes:
		return ctx.BytesObjectClassID, true
	case value.Unicode:
		return ctx.UnicodeObjectClassID, true
	case value.List:
		return ctx.ListObjectClassID, true
	case value.Tuple:
		return ctx.TupleObjectClassID, true
	case value.Set:
		return ctx.SetObjectClassID, true
	case value.Dict:
		return ctx.DictObjectClassID, true
	default:
		return 0, false
	}
}

func (w *walker) evalAttributeLookup(n *ast.AttributeLookup) (value.Value, error) {
	base, err := w.evalExpr(n.Base)
	if err != nil {
		return value.Value{}, err
	}
	w.lastAttrClassBase = base.Kind == value.Class

	var classID int
	switch base.Kind {
	case value.Instance, value.Class:
		classID = base.ID
	case value.Module:
		mod, ok := w.g.Module(base.Name)
		if !ok {
			return value.Indeterminate_(), nil
		}
		if slot, ok := mod.Globals.Lookup(n.Attr); ok {
			return slot.Value, nil
		}
		return value.Indeterminate_(), nil
	default:
		id, ok := scalarClassID(base.Kind)
		if !ok {
			return value.Indeterminate_(), nil
		}
		classID = id
	}

	cls, ok := w.g.Class(classID)
	if !ok {
		return value.Indeterminate_(), nil
	}
	attr, ok := cls.LookupAttribute(n.Attr)
	if !ok {
		return value.Indeterminate_(), nil
	}
	if attr.Kind == value.Function {
		return attr, nil
	}
	return value.ClearValue(attr), nil
}

func asIndex(v value.Value) (int, bool) {
	switch v.Kind {
	case value.Int:
		if !v.Known {
			return 0, false
		}
		return int(v.Int), true
	case value.Bool:
		if !v.Known {
			return 0, false
		}
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (w *walker) evalArrayIndex(n *ast.ArrayIndex) (value.Value, error) {
	container, err := w.evalExpr(n.Container)
	if err != nil {
		return value.Value{}, err
	}
	index, err := w.evalExpr(n.Index)
	if err != nil {
		return value.Value{}, err
	}
	if index.Kind != value.Bool && index.Kind != value.Int && index.Kind != value.Indeterminate {
		return value.Value{}, w.errf(n.Pos(), "subscript index must be an int or bool, got %s", index.Kind)
	}

	switch container.Kind {
	case value.Bytes:
		if container.Known {
			if idx, ok := asIndex(index); ok && idx >= 0 && idx < len(container.Bytes) {
				return value.IntValue(int64(container.Bytes[idx])), nil
			}
		}
		return value.IntType(), nil
	case value.Unicode:
		if container.Known {
			if idx, ok := asIndex(index); ok && idx >= 0 && idx < len(container.Unicode) {
				return value.UnicodeValue(string(container.Unicode[idx])), nil
			}
		}
		return value.UnicodeType(), nil
	case value.List, value.Tuple:
		if container.Known {
			if idx, ok := asIndex(index); ok && idx >= 0 && idx < len(container.Items) {
				return container.Items[idx], nil
			}
		}
		if len(container.Ext) == 1 && container.Ext[0].Kind != value.Indeterminate {
			return value.ClearValue(container.Ext[0]), nil
		}
		return value.Indeterminate_(), nil
	case value.Dict:
		return w.evalDictIndex(container, index), nil
	case value.Indeterminate:
		return value.Indeterminate_(), nil
	default:
		return value.Value{}, w.errf(n.Pos(), "%s is not subscriptable", container.Kind)
	}
}

func (w *walker) evalDictIndex(container, index value.Value) value.Value {
	if container.Known {
		if index.Known {
			for _, e := range container.Dict {
				if value.Equal(e.Key, index) {
					return e.Val
				}
			}
		}
		if len(container.Ext) == 2 && container.Ext[1].Kind != value.Indeterminate {
			return value.ClearValue(container.Ext[1])
		}
		return value.Indeterminate_()
	}
	if len(container.Ext) == 2 && container.Ext[1].Kind != value.Indeterminate {
		return value.ClearValue(container.Ext[1])
	}
	return value.Indeterminate_()
}

// evalArraySlice produces an opaque, same-kind typed result; slice
// bounds are type-checked but not evaluated.
func (w *walker) evalArraySlice(n *ast.ArraySlice) (value.Value, error) {
	container, err := w.evalExpr(n.Container)
	if err != nil {
		return value.Value{}, err
	}
	if _, err := w.evalExpr(n.Low); err != nil {
		return value.Value{}, err
	}
	if _, err := w.evalExpr(n.High); err != nil {
		return value.Value{}, err
	}
	switch container.Kind {
	case value.Bytes, value.Unicode, value.List, value.Tuple:
		return value.Value{Kind: container.Kind, Ext: container.Ext}, nil
	default:
		return value.Indeterminate_(), nil
	}
}

// evalComprehension produces an opaque typed container result:
// comprehensions are not evaluated, only typed from the element (and,
// for "dict", key) expression.
func (w *walker) evalComprehension(n *ast.Comprehension) (value.Value, error) {
	if _, err := w.evalExpr(n.Iter); err != nil {
		return value.Value{}, err
	}
	for _, cond := range n.Ifs {
		if _, err := w.evalExpr(cond); err != nil {
			return value.Value{}, err
		}
	}
	elem, err := w.evalExpr(n.Element)
	if err != nil {
		return value.Value{}, err
	}
	switch n.Kind {
	case "dict":
		key, err := w.evalExpr(n.Key)
		if err != nil {
			return value.Value{}, err
		}
		return value.DictType(value.ClearValue(key), value.ClearValue(elem)), nil
	case "set":
		return value.SetType(value.ClearValue(elem)), nil
	case "generator":
		return value.Indeterminate_(), nil
	default:
		return value.ListType(value.ClearValue(elem)), nil
	}
}

func (w *walker) evalLambda(a *ast.LambdaDefinition) (value.Value, error) {
	fn, ok := w.g.Function(a.ID)
	if !ok {
		return value.Value{}, w.errf(a.Pos(), "internal: no function context registered for lambda")
	}

	prevFn, prevSawReturn, prevTop := w.fn, w.sawReturn, w.atTopLevel
	w.fn, w.sawReturn, w.atTopLevel = fn, false, false

	if err := w.resolveArgTypes(fn, a.Pos()); err != nil {
		w.fn, w.sawReturn, w.atTopLevel = prevFn, prevSawReturn, prevTop
		return value.Value{}, err
	}

	body, err := w.evalExpr(a.Body)
	w.fn, w.sawReturn, w.atTopLevel = prevFn, prevSawReturn, prevTop
	if err != nil {
		return value.Value{}, err
	}
	fn.AddReturnType(body)
	return value.FunctionValue(a.ID), nil
}

func (w *walker) evalFunctionCall(n *ast.FunctionCall) (value.Value, error) {
	callee, err := w.evalExpr(n.Callee)
	if err != nil {
		return value.Value{}, err
	}
	isClassmethod := callee.Kind == value.Function && w.lastAttrClassBase
	w.lastAttrClassBase = false

	for _, arg := range n.Args {
		if _, err := w.evalExpr(arg.Value); err != nil {
			return value.Value{}, err
		}
	}

	switch callee.Kind {
	case value.Class:
		n.IsConstruction = true
		if callee.Known {
			n.CalleeFunctionID = callee.ID
			n.HasCalleeFunction = true
		}
		return value.InstanceType(callee.ID), nil
	case value.Function:
		n.IsClassmethod = isClassmethod
		if !callee.Known {
			return value.Indeterminate_(), nil
		}
		n.CalleeFunctionID = callee.ID
		n.HasCalleeFunction = true
		fn, ok := w.g.Function(callee.ID)
		if !ok {
			return value.Indeterminate_(), nil
		}
		if fn.Module != nil && fn.Module != w.m && fn.Module.Phase < ctx.Analyzed {
			return value.Indeterminate_(), nil
		}
		switch rt := fn.ReturnTypes(); len(rt) {
		case 0:
			return value.NoneValue(), nil
		case 1:
			return rt[0], nil
		default:
			return value.Indeterminate_(), nil
		}
	default:
		return value.Indeterminate_(), nil
	}
}
