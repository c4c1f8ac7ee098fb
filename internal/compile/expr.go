package compile

import (
	"fmt"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/emitter"
	"github.com/bencz/python-jit/internal/value"
)

// evalExpr infers e's type against this fragment's concrete
// specialization and emits the code to compute it, landing the result in
// a freshly allocated register.
func (c *compiler) evalExpr(e ast.Expression) (emitter.Reg, value.Value, error) {
	if e == nil {
		return c.loadIndeterminate(), value.Indeterminate_(), nil
	}
	switch n := e.(type) {
	case *ast.Int:
		dst := c.newReg()
		c.em.LoadIntLiteral(dst, n.Value)
		return dst, value.IntValue(n.Value), nil
	case *ast.Float:
		dst := c.newReg()
		c.em.LoadFloatLiteral(dst, n.Value)
		return dst, value.FloatValue(n.Value), nil
	case *ast.Bytes:
		v := c.g.InternBytes(n.Value, false)
		return c.loadConst(v), v, nil
	case *ast.Unicode:
		v := c.g.InternUnicode(n.Value, false)
		return c.loadConst(v), v, nil
	case *ast.True:
		dst := c.newReg()
		c.em.LoadBoolLiteral(dst, true)
		return dst, value.BoolValue(true), nil
	case *ast.False:
		dst := c.newReg()
		c.em.LoadBoolLiteral(dst, false)
		return dst, value.BoolValue(false), nil
	case *ast.NoneLiteral:
		dst := c.newReg()
		c.em.LoadNoneLiteral(dst)
		return dst, value.NoneValue(), nil
	case *ast.VariableLookup:
		reg, typ := c.lookupNameTyped(n.Name)
		return reg, typ, nil
	case *ast.AttributeLookup:
		return c.evalAttributeLookup(n)
	case *ast.ArrayIndex:
		return c.evalArrayIndex(n)
	case *ast.ArraySlice:
		return c.evalArraySlice(n)
	case *ast.Unary:
		return c.evalUnary(n)
	case *ast.Binary:
		return c.evalBinary(n)
	case *ast.Ternary:
		return c.evalTernary(n)
	case *ast.ListLit:
		return c.evalContainerLit(n.Items, nil, value.List)
	case *ast.SetLit:
		return c.evalContainerLit(n.Items, nil, value.Set)
	case *ast.TupleLit:
		return c.evalContainerLit(n.Items, nil, value.Tuple)
	case *ast.DictLit:
		return c.evalDictLit(n)
	case *ast.Comprehension:
		return c.evalComprehension(n)
	case *ast.LambdaDefinition:
		return c.evalLambda(n)
	case *ast.FunctionCall:
		return c.compileCall(n)
	case *ast.TupleTarget:
		exprs := make([]ast.Expression, len(n.Targets))
		for i, t := range n.Targets {
			exprs[i] = t
		}
		return c.evalContainerLit(exprs, nil, value.Tuple)
	case *ast.Yield:
		_, _, err := c.evalExpr(n.Value)
		return c.loadIndeterminate(), value.Indeterminate_(), err
	default:
		return 0, value.Value{}, fmt.Errorf("compile: unsupported expression %T", e)
	}
}

func (c *compiler) loadIndeterminate() emitter.Reg {
	dst := c.newReg()
	c.em.LoadNoneLiteral(dst)
	return dst
}

func (c *compiler) loadConst(v value.Value) emitter.Reg {
	idx := c.g.InternConst(v)
	dst := c.newReg()
	c.em.LoadConst(dst, idx)
	return dst
}

// materializeKnown emits code loading a fully-known constant Value into
// dst, choosing the cheapest primitive for its kind.
func (c *compiler) materializeKnown(dst emitter.Reg, v value.Value) error {
	switch v.Kind {
	case value.None:
		c.em.LoadNoneLiteral(dst)
	case value.Bool:
		c.em.LoadBoolLiteral(dst, v.Bool)
	case value.Int:
		c.em.LoadIntLiteral(dst, v.Int)
	case value.Float:
		c.em.LoadFloatLiteral(dst, v.Float)
	default:
		idx := c.g.InternConst(v)
		c.em.LoadConst(dst, idx)
	}
	return nil
}

// lookupName resolves a read: current function locals (unless
// explicit-global), then module globals. There is no class-body scope
// here; class bodies are never directly compiled, only their concrete
// attribute accesses through AttributeLookup are.
func (c *compiler) lookupName(name string) emitter.Reg {
	if c.fn != nil && !c.fn.ExplicitGlobals[name] {
		if slot, ok := c.locals[name]; ok {
			return slot.reg
		}
	}
	if slot, ok := c.m.Globals.Lookup(name); ok {
		dst := c.newReg()
		c.em.LoadBaseOffset(dst, c.globalsBaseReg(), slot.Index)
		return dst
	}
	return c.loadIndeterminate()
}

// lookupNameTyped is lookupName plus the Value the register logically
// holds, used everywhere evalExpr needs both.
func (c *compiler) lookupNameTyped(name string) (emitter.Reg, value.Value) {
	if c.fn != nil && !c.fn.ExplicitGlobals[name] {
		if slot, ok := c.locals[name]; ok {
			return slot.reg, slot.typ
		}
	}
	if slot, ok := c.m.Globals.Lookup(name); ok {
		dst := c.newReg()
		c.em.LoadBaseOffset(dst, c.globalsBaseReg(), slot.Index)
		return dst, slot.Value
	}
	return c.loadIndeterminate(), value.Indeterminate_()
}

func (c *compiler) evalUnary(n *ast.Unary) (emitter.Reg, value.Value, error) {
	reg, typ, err := c.evalExpr(n.Operand)
	if err != nil {
		return 0, value.Value{}, err
	}
	res, err := value.UnaryOp(n.Op, typ)
	if err != nil {
		return 0, value.Value{}, c.errf(n.Pos(), "%s", err)
	}
	if res.Known {
		dst := c.newReg()
		return dst, res, c.materializeKnown(dst, res)
	}
	dst := c.newReg()
	switch n.Op {
	case "not":
		// No boolean-negate primitive exists; test truthiness with a
		// JumpIfFalse branch against whatever kind reg holds.
		falseyLabel := c.newLabel("Lnotf")
		endLabel := c.newLabel("Lnote")
		c.em.JumpIfFalse(reg, falseyLabel)
		c.em.LoadBoolLiteral(dst, false)
		c.em.Jump(endLabel)
		c.em.DefineLabel(falseyLabel)
		c.em.LoadBoolLiteral(dst, true)
		c.em.DefineLabel(endLabel)
	case "-":
		zero := c.newReg()
		if res.Kind == value.Float {
			c.em.LoadFloatLiteral(zero, 0)
			c.em.ArithFloat("-", dst, zero, reg)
		} else {
			c.em.LoadIntLiteral(zero, 0)
			c.em.ArithInt("-", dst, zero, reg)
		}
	default:
		c.em.MoveInt(dst, reg)
	}
	return dst, res, nil
}

func (c *compiler) evalBinary(n *ast.Binary) (emitter.Reg, value.Value, error) {
	lReg, lTyp, err := c.evalExpr(n.Left)
	if err != nil {
		return 0, value.Value{}, err
	}
	rReg, rTyp, err := c.evalExpr(n.Right)
	if err != nil {
		return 0, value.Value{}, err
	}
	res, err := value.BinaryOp(n.Op, lTyp, rTyp)
	if err != nil {
		return 0, value.Value{}, c.errf(n.Pos(), "%s", err)
	}
	if res.Known {
		dst := c.newReg()
		return dst, res, c.materializeKnown(dst, res)
	}
	dst := c.newReg()
	switch {
	case n.Op == "and" || n.Op == "or":
		// No short-circuit primitive exists, and this path is only
		// reached for an unknown left operand (known ones fold above).
		// and/or evaluate to one operand or the other, never a fresh
		// Bool; carrying the right operand is the closest register-level
		// approximation.
		c.em.MoveInt(dst, rReg)
	case emitter.ArithOpCode(n.Op) < 0:
		// Bitwise/shift operators have no opcode in the reference backend;
		// track the resulting type only.
		c.em.MoveInt(dst, lReg)
	case res.Kind == value.Float || lTyp.Kind == value.Float || rTyp.Kind == value.Float:
		c.em.ArithFloat(n.Op, dst, lReg, rReg)
	case res.Kind == value.Bool || res.Kind == value.Int:
		c.em.ArithInt(n.Op, dst, lReg, rReg)
	default:
		// Sequence concatenation and other container-producing operators
		// have no register-level arithmetic form; the reference backend
		// only tracks their resulting type.
		c.em.MoveInt(dst, lReg)
	}
	return dst, res, nil
}

func (c *compiler) evalTernary(n *ast.Ternary) (emitter.Reg, value.Value, error) {
	condReg, condTyp, err := c.evalExpr(n.Cond)
	if err != nil {
		return 0, value.Value{}, err
	}
	if truth, known := value.TruthValue(condTyp); known {
		if truth {
			return c.evalExpr(n.Then)
		}
		return c.evalExpr(n.Else)
	}

	dst := c.newReg()
	elseLabel := c.newLabel("Ltelse")
	endLabel := c.newLabel("Ltend")
	c.em.JumpIfFalse(condReg, elseLabel)
	thenReg, thenTyp, err := c.evalExpr(n.Then)
	if err != nil {
		return 0, value.Value{}, err
	}
	c.em.MoveInt(dst, thenReg)
	c.em.Jump(endLabel)
	c.em.DefineLabel(elseLabel)
	elseReg, elseTyp, err := c.evalExpr(n.Else)
	if err != nil {
		return 0, value.Value{}, err
	}
	c.em.MoveInt(dst, elseReg)
	c.em.DefineLabel(endLabel)

	res, err := value.TernaryOp(value.Indeterminate_(), thenTyp, elseTyp)
	if err != nil {
		return 0, value.Value{}, c.errf(n.Pos(), "%s", err)
	}
	return dst, res, nil
}

// evalContainerLit emits an AllocObject sized for the items plus one
// StoreBaseOffset per item, returning a known container Value for static
// typing purposes alongside the heap handle register.
func (c *compiler) evalContainerLit(exprs []ast.Expression, _ []ast.LValue, kind value.Kind) (emitter.Reg, value.Value, error) {
	regs := make([]emitter.Reg, len(exprs))
	vals := make([]value.Value, len(exprs))
	for i, it := range exprs {
		r, v, err := c.evalExpr(it)
		if err != nil {
			return 0, value.Value{}, err
		}
		regs[i] = r
		vals[i] = v
	}
	dst := c.newReg()
	size := len(regs)
	if size == 0 {
		size = 1
	}
	c.em.AllocObject(dst, size)
	for i, r := range regs {
		c.em.StoreBaseOffset(dst, i, r)
	}
	switch kind {
	case value.Tuple:
		return dst, value.TupleValue(vals), nil
	case value.Set:
		return dst, value.SetValue(vals), nil
	default:
		return dst, value.ListValue(vals), nil
	}
}

func (c *compiler) evalDictLit(n *ast.DictLit) (emitter.Reg, value.Value, error) {
	entries := make([]value.DictEntry, len(n.Entries))
	keyRegs := make([]emitter.Reg, len(n.Entries))
	valRegs := make([]emitter.Reg, len(n.Entries))
	for i, ent := range n.Entries {
		kReg, kVal, err := c.evalExpr(ent.Key)
		if err != nil {
			return 0, value.Value{}, err
		}
		vReg, vVal, err := c.evalExpr(ent.Value)
		if err != nil {
			return 0, value.Value{}, err
		}
		keyRegs[i], valRegs[i] = kReg, vReg
		entries[i] = value.DictEntry{Key: kVal, Val: vVal}
	}
	dst := c.newReg()
	size := 2 * len(entries)
	if size == 0 {
		size = 1
	}
	c.em.AllocObject(dst, size)
	for i := range entries {
		c.em.StoreBaseOffset(dst, 2*i, keyRegs[i])
		c.em.StoreBaseOffset(dst, 2*i+1, valRegs[i])
	}
	return dst, value.DictValue(entries), nil
}

// evalComprehension types the comprehension's result shape and does not
// model iteration; comprehensions are not evaluated.
func (c *compiler) evalComprehension(n *ast.Comprehension) (emitter.Reg, value.Value, error) {
	if _, _, err := c.evalExpr(n.Iter); err != nil {
		return 0, value.Value{}, err
	}
	for _, cond := range n.Ifs {
		if _, _, err := c.evalExpr(cond); err != nil {
			return 0, value.Value{}, err
		}
	}
	_, elemTyp, err := c.evalExpr(n.Element)
	if err != nil {
		return 0, value.Value{}, err
	}
	var res value.Value
	switch n.Kind {
	case "dict":
		_, keyTyp, err := c.evalExpr(n.Key)
		if err != nil {
			return 0, value.Value{}, err
		}
		res = value.DictType(value.ClearValue(keyTyp), value.ClearValue(elemTyp))
	case "set":
		res = value.SetType(value.ClearValue(elemTyp))
	case "generator":
		res = value.Indeterminate_()
	default:
		res = value.ListType(value.ClearValue(elemTyp))
	}
	return c.loadIndeterminate(), res, nil
}

// evalLambda compiles nothing for the lambda body itself (it is compiled
// lazily as its own fragment, exactly like any other function, once a
// call site resolves it); it only materializes the lambda's Function
// value so the defining expression has somewhere to put it.
func (c *compiler) evalLambda(n *ast.LambdaDefinition) (emitter.Reg, value.Value, error) {
	v := value.FunctionValue(n.ID)
	return c.loadConst(v), v, nil
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

func (c *compiler) evalArrayIndex(n *ast.ArrayIndex) (emitter.Reg, value.Value, error) {
	containerReg, containerTyp, err := c.evalExpr(n.Container)
	if err != nil {
		return 0, value.Value{}, err
	}
	_, indexTyp, err := c.evalExpr(n.Index)
	if err != nil {
		return 0, value.Value{}, err
	}
	if indexTyp.Kind != value.Bool && indexTyp.Kind != value.Int && indexTyp.Kind != value.Indeterminate {
		return 0, value.Value{}, c.errf(n.Pos(), "subscript index must be an int or bool, got %s", indexTyp.Kind)
	}

	switch containerTyp.Kind {
	case value.List, value.Tuple:
		if idx, ok := asIndex(indexTyp); ok && containerTyp.Known && idx >= 0 && idx < len(containerTyp.Items) {
			item := containerTyp.Items[idx]
			dst := c.newReg()
			c.em.LoadBaseOffset(dst, containerReg, idx)
			return dst, item, nil
		}
		if len(containerTyp.Ext) == 1 && containerTyp.Ext[0].Kind != value.Indeterminate {
			return c.loadIndeterminate(), value.ClearValue(containerTyp.Ext[0]), nil
		}
		return c.loadIndeterminate(), value.Indeterminate_(), nil
	case value.Dict:
		return c.loadIndeterminate(), evalDictIndexType(containerTyp, indexTyp), nil
	case value.Bytes:
		if containerTyp.Known {
			if idx, ok := asIndex(indexTyp); ok && idx >= 0 && idx < len(containerTyp.Bytes) {
				return c.loadConst(value.IntValue(int64(containerTyp.Bytes[idx]))), value.IntValue(int64(containerTyp.Bytes[idx])), nil
			}
		}
		return c.loadIndeterminate(), value.IntType(), nil
	case value.Unicode:
		if containerTyp.Known {
			if idx, ok := asIndex(indexTyp); ok && idx >= 0 && idx < len(containerTyp.Unicode) {
				v := value.UnicodeValue(string(containerTyp.Unicode[idx]))
				return c.loadConst(v), v, nil
			}
		}
		return c.loadIndeterminate(), value.UnicodeType(), nil
	case value.Indeterminate:
		return c.loadIndeterminate(), value.Indeterminate_(), nil
	default:
		return 0, value.Value{}, c.errf(n.Pos(), "%s is not subscriptable", containerTyp.Kind)
	}
}

func evalDictIndexType(container, index value.Value) value.Value {
	if container.Known && index.Known {
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

// evalArraySlice produces an opaque, same-kind typed result and emits no
// load; slice bounds are type-checked but never evaluated into machine
// code.
func (c *compiler) evalArraySlice(n *ast.ArraySlice) (emitter.Reg, value.Value, error) {
	_, containerTyp, err := c.evalExpr(n.Container)
	if err != nil {
		return 0, value.Value{}, err
	}
	if _, _, err := c.evalExpr(n.Low); err != nil {
		return 0, value.Value{}, err
	}
	if _, _, err := c.evalExpr(n.High); err != nil {
		return 0, value.Value{}, err
	}
	switch containerTyp.Kind {
	case value.Bytes, value.Unicode, value.List, value.Tuple:
		return c.loadIndeterminate(), value.Value{Kind: containerTyp.Kind, Ext: containerTyp.Ext}, nil
	default:
		return c.loadIndeterminate(), value.Indeterminate_(), nil
	}
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

func (c *compiler) evalAttributeLookup(n *ast.AttributeLookup) (emitter.Reg, value.Value, error) {
	baseReg, baseTyp, err := c.evalExpr(n.Base)
	if err != nil {
		return 0, value.Value{}, err
	}

	var classID int
	switch baseTyp.Kind {
	case value.Instance, value.Class:
		classID = baseTyp.ID
	case value.Module:
		mod, ok := c.g.Module(baseTyp.Name)
		if !ok {
			return c.loadIndeterminate(), value.Indeterminate_(), nil
		}
		slot, ok := mod.Globals.Lookup(n.Attr)
		if !ok {
			return c.loadIndeterminate(), value.Indeterminate_(), nil
		}
		if slot.Value.Kind == value.Function || slot.Value.Kind == value.Class || slot.Value.Known {
			return c.loadConst(slot.Value), slot.Value, nil
		}
		return c.loadIndeterminate(), slot.Value, nil
	default:
		id, ok := scalarClassID(baseTyp.Kind)
		if !ok {
			return c.loadIndeterminate(), value.Indeterminate_(), nil
		}
		classID = id
	}

	cls, ok := c.g.Class(classID)
	if !ok {
		return c.loadIndeterminate(), value.Indeterminate_(), nil
	}
	attr, ok := cls.LookupAttribute(n.Attr)
	if !ok {
		return c.loadIndeterminate(), value.Indeterminate_(), nil
	}
	if attr.Kind == value.Function {
		return c.loadConst(attr), attr, nil
	}
	if baseTyp.Kind == value.Instance {
		idx, ok := cls.AttributeIndexes[n.Attr]
		if !ok {
			return c.loadIndeterminate(), value.ClearValue(attr), nil
		}
		dst := c.newReg()
		c.em.LoadBaseOffset(dst, baseReg, ctx.AttributeOffset(idx))
		return dst, value.ClearValue(attr), nil
	}
	return c.loadIndeterminate(), value.ClearValue(attr), nil
}
