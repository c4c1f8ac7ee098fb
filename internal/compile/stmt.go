package compile

import (
	"fmt"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/emitter"
	"github.com/bencz/python-jit/internal/value"
)

// visitBlock emits every statement in stmts in order. It returns
// *errTerminatedBySplit, unwrapped by compileAndPublish, the moment a
// call site's callee fragment is still unknown: the caller's own
// recompilation starts the whole pass over once the dispatcher resolves
// the callee.
func (c *compiler) visitBlock(stmts []ast.Statement) error {
	for _, s := range stmts {
		if err := c.visitStatement(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) visitStatement(s ast.Statement) error {
	switch n := s.(type) {
	case *ast.ExpressionStatement:
		_, _, err := c.evalExpr(n.Expr)
		return err
	case *ast.Assignment:
		reg, typ, err := c.evalExpr(n.Value)
		if err != nil {
			return err
		}
		return c.assign(n.Target, reg, typ, n.Pos())
	case *ast.Augment:
		return c.errf(n.Pos(), "augmented assignment is not supported")
	case *ast.Delete:
		return c.errf(n.Pos(), "del statement is not supported")
	case *ast.Import:
		return nil // resolved statically by annotate/analyze
	case *ast.Global:
		return nil
	case *ast.Exec:
		return c.errf(n.Pos(), "exec statement is not supported")
	case *ast.Assert:
		// The reference emitter has no raise/unwind primitive; assert
		// compiles to evaluating its operands for type checking only.
		if _, _, err := c.evalExpr(n.Cond); err != nil {
			return err
		}
		_, _, err := c.evalExpr(n.Message)
		return err
	case *ast.Break:
		if len(c.breakLabels) == 0 {
			return c.errf(n.Pos(), "break outside loop")
		}
		c.em.Jump(c.breakLabels[len(c.breakLabels)-1])
		return nil
	case *ast.Continue:
		if len(c.continueLabels) == 0 {
			return c.errf(n.Pos(), "continue outside loop")
		}
		c.em.Jump(c.continueLabels[len(c.continueLabels)-1])
		return nil
	case *ast.Return:
		return c.visitReturn(n)
	case *ast.Raise:
		// Same limitation as Assert: no unwind primitive to target.
		_, _, err := c.evalExpr(n.Exc)
		return err
	case *ast.Yield:
		_, _, err := c.evalExpr(n.Value)
		return err
	case *ast.If:
		return c.visitIf(n)
	case *ast.For:
		return c.visitFor(n)
	case *ast.While:
		return c.visitWhile(n)
	case *ast.Try:
		return c.visitTry(n)
	case *ast.With:
		return c.visitWith(n)
	case *ast.FunctionDefinition:
		return c.bindKnownConst(n.Name, value.FunctionValue(n.ID), n.Pos())
	case *ast.ClassDefinition:
		return c.bindKnownConst(n.Name, value.ClassValue(n.ID), n.Pos())
	default:
		return fmt.Errorf("compile: unsupported statement %T", s)
	}
}

func (c *compiler) visitReturn(n *ast.Return) error {
	if c.fn == nil {
		if n.Value != nil {
			if _, _, err := c.evalExpr(n.Value); err != nil {
				return err
			}
		}
		c.em.Jump(c.returnLabel)
		return nil
	}
	if c.fn.IsConstructor() {
		if n.Value != nil {
			return c.errf(n.Pos(), "__init__ must not return a value")
		}
		c.sawReturn = true
		c.em.Jump(c.returnLabel)
		return nil
	}
	if n.Value == nil {
		c.em.LoadNoneLiteral(CallReturnReg)
		c.addReturnType(value.NoneValue())
		c.sawReturn = true
		c.em.Jump(c.returnLabel)
		return nil
	}
	reg, typ, err := c.evalExpr(n.Value)
	if err != nil {
		return err
	}
	c.em.MoveInt(CallReturnReg, reg)
	c.addReturnType(typ)
	c.sawReturn = true
	c.em.Jump(c.returnLabel)
	return nil
}

// visitIf re-derives the condition's truth value against this
// specialization's concrete types rather than trusting the AST's
// AlwaysTrue/AlwaysFalse flags, which were stamped against the
// function's generic argument types.
func (c *compiler) visitIf(n *ast.If) error {
	condReg, condTyp, err := c.evalExpr(n.Cond)
	if err != nil {
		return err
	}
	if truth, known := value.TruthValue(condTyp); known {
		if truth {
			return c.visitBlock(n.Body)
		}
		return c.visitElifChain(n.Elifs, n.Else, n.HasElse)
	}

	elseLabel := c.newLabel("Lelse")
	endLabel := c.newLabel("Lendif")
	c.em.JumpIfFalse(condReg, elseLabel)
	if err := c.visitBlock(n.Body); err != nil {
		return err
	}
	c.em.Jump(endLabel)
	c.em.DefineLabel(elseLabel)
	if err := c.visitElifChain(n.Elifs, n.Else, n.HasElse); err != nil {
		return err
	}
	c.em.DefineLabel(endLabel)
	return nil
}

func (c *compiler) visitElifChain(elifs []ast.Elif, els []ast.Statement, hasElse bool) error {
	if len(elifs) == 0 {
		if hasElse {
			return c.visitBlock(els)
		}
		return nil
	}
	head, rest := elifs[0], elifs[1:]
	condReg, condTyp, err := c.evalExpr(head.Cond)
	if err != nil {
		return err
	}
	if truth, known := value.TruthValue(condTyp); known {
		if truth {
			return c.visitBlock(head.Body)
		}
		return c.visitElifChain(rest, els, hasElse)
	}

	elseLabel := c.newLabel("Lelif")
	endLabel := c.newLabel("Lendelif")
	c.em.JumpIfFalse(condReg, elseLabel)
	if err := c.visitBlock(head.Body); err != nil {
		return err
	}
	c.em.Jump(endLabel)
	c.em.DefineLabel(elseLabel)
	if err := c.visitElifChain(rest, els, hasElse); err != nil {
		return err
	}
	c.em.DefineLabel(endLabel)
	return nil
}

func (c *compiler) visitWhile(n *ast.While) error {
	top := c.newLabel("Lwhile")
	end := c.newLabel("Lendwhile")
	c.em.DefineLabel(top)
	condReg, _, err := c.evalExpr(n.Cond)
	if err != nil {
		return err
	}
	c.em.JumpIfFalse(condReg, end)

	c.breakLabels = append(c.breakLabels, end)
	c.continueLabels = append(c.continueLabels, top)
	err = c.visitBlock(n.Body)
	c.breakLabels = c.breakLabels[:len(c.breakLabels)-1]
	c.continueLabels = c.continueLabels[:len(c.continueLabels)-1]
	if err != nil {
		return err
	}

	c.em.Jump(top)
	c.em.DefineLabel(end)
	return nil
}

// iterationElementType determines a for-loop variable's type from the
// concrete iterable value this specialization is compiling against.
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

// visitFor statically unrolls iteration over a compile-time-known
// list/tuple/set, binding the loop variable to each concrete item in
// turn. The reference emitter has no iterator-protocol primitive, so a
// dynamic container binds the loop variable's inferred element type
// without emitting any body code.
func (c *compiler) visitFor(n *ast.For) error {
	iterReg, iterTyp, err := c.evalExpr(n.Iter)
	if err != nil {
		return err
	}
	elemTyp, err := iterationElementType(iterTyp)
	if err != nil {
		return c.errf(n.Pos(), "%s", err)
	}

	if iterTyp.Known && (iterTyp.Kind == value.List || iterTyp.Kind == value.Tuple || iterTyp.Kind == value.Set) {
		end := c.newLabel("Lendfor")
		for i, item := range iterTyp.Items {
			next := c.newLabel(fmt.Sprintf("Lfornext%d", i))
			itemReg := c.newReg()
			if err := c.materializeKnown(itemReg, item); err != nil {
				return err
			}
			if err := c.bindLoopVar(n.Var, itemReg, value.ClearValue(item)); err != nil {
				return err
			}
			c.breakLabels = append(c.breakLabels, end)
			c.continueLabels = append(c.continueLabels, next)
			err := c.visitBlock(n.Body)
			c.breakLabels = c.breakLabels[:len(c.breakLabels)-1]
			c.continueLabels = c.continueLabels[:len(c.continueLabels)-1]
			if err != nil {
				return err
			}
			c.em.DefineLabel(next)
		}
		c.em.DefineLabel(end)
		return nil
	}

	_ = iterReg
	return c.bindLoopVar(n.Var, 0, elemTyp)
}

func (c *compiler) bindLoopVar(name string, reg emitter.Reg, typ value.Value) error {
	return c.assignLocalOrGlobal(name, reg, typ)
}

// visitTry compiles body, every handler, and finally as plain sequential
// code: the reference emitter has no unwind primitive, so a handler's
// code runs immediately after the body rather than only on a matching
// exception. Every handler's bound exception variable still gets a real
// type.
func (c *compiler) visitTry(n *ast.Try) error {
	if err := c.visitBlock(n.Body); err != nil {
		return err
	}
	for _, h := range n.Handlers {
		bindType := value.Indeterminate_()
		if h.ExcType != nil {
			_, excTyp, err := c.evalExpr(h.ExcType)
			if err != nil {
				return err
			}
			if excTyp.Kind == value.Class {
				bindType = value.InstanceType(excTyp.ID)
			}
		}
		if h.Bind != "" {
			reg := c.newReg()
			c.em.LoadNoneLiteral(reg)
			if err := c.assignLocalOrGlobal(h.Bind, reg, bindType); err != nil {
				return err
			}
		}
		if err := c.visitBlock(h.Body); err != nil {
			return err
		}
	}
	return c.visitBlock(n.Finally)
}

func (c *compiler) visitWith(n *ast.With) error {
	ctxReg, _, err := c.evalExpr(n.Ctx)
	if err != nil {
		return err
	}
	if n.Var != "" {
		if err := c.assignLocalOrGlobal(n.Var, ctxReg, value.Indeterminate_()); err != nil {
			return err
		}
	}
	return c.visitBlock(n.Body)
}

// assign routes a write through to a local, a module global, or (for
// attribute targets) an instance's heap cell.
func (c *compiler) assign(target ast.LValue, reg emitter.Reg, typ value.Value, pos ast.Offset) error {
	switch t := target.(type) {
	case *ast.VariableLookup:
		return c.assignLocalOrGlobal(t.Name, reg, typ)
	case *ast.AttributeLookup:
		baseReg, baseTyp, err := c.evalExpr(t.Base)
		if err != nil {
			return err
		}
		if baseTyp.Kind != value.Instance {
			return nil
		}
		cls, ok := c.g.Class(baseTyp.ID)
		if !ok {
			return nil
		}
		idx, ok := cls.AttributeIndexes[t.Attr]
		if !ok {
			return nil
		}
		c.em.StoreBaseOffset(baseReg, ctx.AttributeOffset(idx), reg)
		return nil
	case *ast.ArrayIndex:
		// No register-indexed store primitive exists in the reference
		// emitter (LoadBaseOffset/StoreBaseOffset take a compile-time
		// constant offset); a dynamic subscript assignment evaluates its
		// operands for type-checking purposes only.
		if _, _, err := c.evalExpr(t.Container); err != nil {
			return err
		}
		_, _, err := c.evalExpr(t.Index)
		return err
	case *ast.TupleTarget:
		for _, sub := range t.Targets {
			if err := c.assign(sub, reg, value.Indeterminate_(), pos); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("compile: unsupported assignment target %T", target)
	}
}

func (c *compiler) assignLocalOrGlobal(name string, reg emitter.Reg, typ value.Value) error {
	if c.fn != nil && !c.fn.ExplicitGlobals[name] {
		c.locals[name] = localSlot{reg: reg, typ: typ}
		return nil
	}
	return c.storeModuleGlobal(name, reg, typ)
}

func (c *compiler) storeModuleGlobal(name string, reg emitter.Reg, typ value.Value) error {
	slot, ok := c.m.Globals.Lookup(name)
	if !ok {
		return fmt.Errorf("compile: internal: no global slot for %q in module %q", name, c.m.Name)
	}
	slot.Value = typ
	c.em.StoreBaseOffset(c.globalsBaseReg(), slot.Index, reg)
	return nil
}

// bindKnownConst materializes a compile-time-known Function/Class value
// (a nested def/class statement's own binding) into a fresh register via
// the constants pool, and stores it exactly as an ordinary assignment
// would.
func (c *compiler) bindKnownConst(name string, v value.Value, pos ast.Offset) error {
	idx := c.g.InternConst(v)
	reg := c.newReg()
	c.em.LoadConst(reg, idx)
	return c.assign(&ast.VariableLookup{Name: name}, reg, v, pos)
}
