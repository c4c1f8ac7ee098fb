package compile

import (
	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/emitter"
	"github.com/bencz/python-jit/internal/value"
)

// compileCall emits one call site. The callee is re-derived against this
// fragment's concrete specialization via evalExpr, not read from
// n.CalleeFunctionID: the AST binding was stamped once, generically, by
// the analysis visitor and may not hold for narrower argument types.
//
// Calling convention: arguments land in registers 0..k-1, the result
// comes back in CallReturnReg. The reference Machine shares one register
// file across nested calls, so every call site saves registers
// 0..max(k,1)-1 around the call and stages argument values through fresh
// temporaries first.
func (c *compiler) compileCall(n *ast.FunctionCall) (emitter.Reg, value.Value, error) {
	calleeReg, calleeTyp, err := c.evalExpr(n.Callee)
	if err != nil {
		return 0, value.Value{}, err
	}
	_ = calleeReg // the callee's own register is never called through directly; only its type drives dispatch

	argRegs := make([]emitter.Reg, 0, len(n.Args)+1)
	argTypes := make([]value.Value, 0, len(n.Args)+1)

	var functionID int
	var resultTyp value.Value

	switch calleeTyp.Kind {
	case value.Class:
		if !calleeTyp.Known {
			return 0, value.Value{}, c.errf(n.Pos(), "cannot construct an instance of an indeterminate class")
		}
		classID := calleeTyp.ID
		cls, ok := c.g.Class(classID)
		if !ok {
			return 0, value.Value{}, c.errf(n.Pos(), "unknown class id %d", classID)
		}
		size := ctx.HeaderSize + len(cls.Attributes)*ctx.CellSize
		selfReg := c.newReg()
		c.em.AllocObject(selfReg, size)
		argRegs = append(argRegs, selfReg)
		argTypes = append(argTypes, value.InstanceType(classID))
		functionID = classID
		resultTyp = value.InstanceType(classID)

	case value.Function:
		if !calleeTyp.Known {
			return 0, value.Value{}, c.errf(n.Pos(), "cannot call an indeterminate function value")
		}
		functionID = calleeTyp.ID
		if n.IsClassmethod {
			if attr, ok := n.Callee.(*ast.AttributeLookup); ok {
				selfReg, _, err := c.evalExpr(attr.Base)
				if err != nil {
					return 0, value.Value{}, err
				}
				argRegs = append(argRegs, selfReg)
				argTypes = append(argTypes, value.Indeterminate_())
			}
		}
		fn, ok := c.g.Function(functionID)
		if !ok {
			return 0, value.Value{}, c.errf(n.Pos(), "unknown function id %d", functionID)
		}
		switch rt := fn.ReturnTypes(); len(rt) {
		case 1:
			resultTyp = rt[0]
		default:
			resultTyp = value.Indeterminate_()
		}

	default:
		return 0, value.Value{}, c.errf(n.Pos(), "value of kind %s is not callable", calleeTyp.Kind)
	}

	for _, arg := range n.Args {
		reg, typ, err := c.evalExpr(arg.Value)
		if err != nil {
			return 0, value.Value{}, err
		}
		argRegs = append(argRegs, reg)
		argTypes = append(argTypes, typ)
	}

	dst, err := c.emitCallSequence(n, functionID, argRegs, argTypes)
	if err != nil {
		return 0, value.Value{}, err
	}
	return dst, resultTyp, nil
}

// emitCallSequence stages argRegs into the calling convention's parameter
// registers, emits the dispatch or direct call, and returns a fresh
// register holding CallReturnReg's value once the call completes.
//
// The split label sits immediately after the dispatcher transfer. When
// the callee fragment is already published, the direct call is emitted
// at that position, so the resume address the dispatcher hands back
// lands on the direct call in the recompiled caller and the callee runs
// with the argument registers the trampoline entry staged. When the
// callee fragment is not yet known, nothing can be emitted past the
// label and this pass terminates by split.
func (c *compiler) emitCallSequence(n *ast.FunctionCall, functionID int, argRegs []emitter.Reg, argTypes []value.Value) (emitter.Reg, error) {
	k := len(argRegs)

	// Phase 1: copy every argument value into a fresh temporary, so the
	// phase-2 moves into 0..k-1 can never read a source register that a
	// preceding phase-2 move has already overwritten.
	staged := make([]emitter.Reg, k)
	for i, r := range argRegs {
		s := c.newReg()
		c.em.MoveInt(s, r)
		staged[i] = s
	}

	numSave := k
	if numSave < 1 {
		numSave = 1
	}
	for i := 0; i < numSave; i++ {
		c.em.Push(emitter.Reg(i))
	}

	for i, s := range staged {
		c.em.MoveInt(emitter.Reg(i), s)
	}

	fn, ok := c.g.Function(functionID)
	if !ok {
		return 0, c.errf(n.Pos(), "unknown function id %d", functionID)
	}
	frag, resolved := fn.FragmentFor(argTypes)
	resolved = resolved && frag.Published()

	if !resolved {
		token := c.g.NextCallsiteToken()
		c.g.UnresolvedCallsites[token] = &ctx.UnresolvedFunctionCall{
			Token:             token,
			CalleeFunctionID:  functionID,
			ArgTypes:          argTypes,
			CallerModule:      c.m.Name,
			CallerFunctionID:  calleeFunctionIDOf(c.fn),
			CallerFragmentIdx: c.fragIndex(),
			CallerSplitID:     n.SplitID,
		}
		c.em.CallDispatch(token)
	}

	splitLabel := c.newLabel("Lsplit")
	c.em.DefineLabel(splitLabel)
	if n.SplitID >= 0 && n.SplitID < len(c.splitLabels) {
		c.splitLabels[n.SplitID] = splitLabel
	}

	if !resolved {
		return 0, &errTerminatedBySplit{splitID: n.SplitID}
	}

	c.em.CallAddress(frag.CodeBase)

	dst := c.newReg()
	c.em.MoveInt(dst, CallReturnReg)

	for i := numSave - 1; i >= 0; i-- {
		c.em.Pop(emitter.Reg(i))
	}

	return dst, nil
}

// calleeFunctionIDOf returns the id the JIT dispatcher should record as
// the caller's own function id, 0 meaning "a module root fragment".
func calleeFunctionIDOf(fn *ctx.FunctionContext) int {
	if fn == nil {
		return 0
	}
	return fn.ID
}

// fragIndex reports which of the current function's (or module root's)
// fragments this compilation pass is building, for callsite bookkeeping.
func (c *compiler) fragIndex() int {
	if c.frag == nil {
		return 0
	}
	return c.frag.Index
}
