// Package compile implements the compilation visitor: it walks a
// function's or a module's AST and emits one fragment's worth of machine
// code through the emitter interface, specialized either to a module's
// top level (the root fragment) or to a function's concrete argument
// types. A single recursive walker both infers a sub-expression's type
// and emits the code to compute it in one pass.
package compile

import (
	"errors"
	"fmt"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/diag"
	"github.com/bencz/python-jit/internal/emitter"
	"github.com/bencz/python-jit/internal/jit"
	"github.com/bencz/python-jit/internal/objruntime"
	"github.com/bencz/python-jit/internal/value"
)

// Visitor is the compilation visitor. It carries no state of its own; all
// per-fragment state lives in the compiler type built fresh for each call.
type Visitor struct{}

// New returns a ready-to-use compilation visitor.
func New() *Visitor { return &Visitor{} }

// errTerminatedBySplit is the "terminated by split" signal: emission
// stopped early because it reached a call site whose callee fragment is
// not yet known. The statements/expressions already emitted remain valid;
// everything after the call site was never visited.
type errTerminatedBySplit struct{ splitID int }

func (e *errTerminatedBySplit) Error() string {
	return fmt.Sprintf("compile: emission terminated at unresolved call split %d", e.splitID)
}

// compiler holds the mutable state of one fragment's compilation pass:
// register/label allocation, the locals table, loop label stacks, and the
// split bookkeeping the JIT dispatcher later consults.
type compiler struct {
	g    *ctx.GlobalContext
	m    *ctx.ModuleContext
	fn   *ctx.FunctionContext // nil when compiling a module's root fragment
	frag *ctx.Fragment
	em   emitter.Emitter

	nextReg   emitter.Reg
	nextLabel int

	locals map[string]localSlot

	globalsReg emitter.Reg
	haveGlobalsReg bool

	breakLabels    []emitter.Label
	continueLabels []emitter.Label
	returnLabel    emitter.Label

	splitLabels []emitter.Label // index by split id; "" until DefineLabel'd
	returnTypes []value.Value   // accumulated from `return` statements seen so far
	sawReturn   bool
}

// CallReturnReg is the calling convention's single return-value register:
// every compiled fragment leaves its result there before Halt, and every
// call site reads it back immediately after the call returns. It doubles
// as parameter register 0, which is safe because by the time a callee
// reaches its own return it no longer needs its own argument 0.
const CallReturnReg emitter.Reg = 0

// localSlot is one function-local variable's compiled location.
type localSlot struct {
	reg emitter.Reg
	typ value.Value
}

func (c *compiler) newReg() emitter.Reg {
	r := c.nextReg
	c.nextReg++
	return r
}

func (c *compiler) newLabel(prefix string) emitter.Label {
	c.nextLabel++
	return emitter.Label(fmt.Sprintf("%s%d", prefix, c.nextLabel))
}

func (c *compiler) errf(pos ast.Offset, format string, args ...any) error {
	src := ""
	file := c.m.Name
	if c.m.Source != nil {
		src = *c.m.Source
	}
	return diag.New(diag.Compile, file, src, int(pos), format, args...)
}

// numSplits reports how many call-site splits this fragment's scope owns.
func (c *compiler) numSplits() int {
	if c.fn != nil {
		return c.fn.NumSplits
	}
	return c.m.RootFragmentNumSplits
}

// globalsBaseReg lazily materializes the register holding this module's
// globals heap handle, loading it once per fragment on first use.
func (c *compiler) globalsBaseReg() emitter.Reg {
	if c.haveGlobalsReg {
		return c.globalsReg
	}
	r := c.newReg()
	c.em.LoadIntLiteral(r, int64(c.m.GlobalsHeapIndex))
	c.globalsReg = r
	c.haveGlobalsReg = true
	return r
}

// CompileAndRunRoot implements phase.Compiler: it compiles the module's
// root fragment (creating it if necessary), publishes it to the shared
// code buffer, and runs it to completion on a fresh reference Machine.
// A JIT dispatch failure during that run comes back as its exception
// instance (Indeterminate when there is none); any other run failure is
// returned as the error.
func (v *Visitor) CompileAndRunRoot(g *ctx.GlobalContext, m *ctx.ModuleContext, rt objruntime.Runtime, disp emitter.Dispatcher) (value.Value, error) {
	if m.AST == nil {
		return value.Value{}, fmt.Errorf("compile: module %q has no AST", m.Name)
	}
	if m.RootFragment == nil {
		m.RootFragment = &ctx.Fragment{ReturnType: value.Indeterminate_()}
	}

	machine := emitter.NewMachine(256, disp)
	machine.Consts = g.Const
	if m.GlobalsHeapIndex < 0 {
		idx := machine.AllocHeapObject(m.Globals.Len())
		for i := 0; i < m.Globals.Len(); i++ {
			machine.Heap[idx][i] = m.Globals.Slot(i).Value
		}
		m.GlobalsHeapIndex = idx
	} else {
		// A prior run on a different Machine already bound this module's
		// globals; re-seed a fresh heap object at the same conventional
		// index so this Machine's addressing matches compiled code that
		// assumes GlobalsHeapIndex.
		for len(machine.Heap) <= m.GlobalsHeapIndex {
			machine.AllocHeapObject(m.Globals.Len())
		}
	}
	machine.Globals[m.Name] = m.GlobalsHeapIndex

	if err := v.compileAndPublish(g, m, nil, m.RootFragment); err != nil {
		return value.Value{}, err
	}

	// RunFrom against the shared buffer itself, not a captured slice
	// header: a dispatch during the run appends the callee's (and the
	// recompiled root's) code to g.CodeBuffer, and resume addresses point
	// past what Run would have captured.
	if err := machine.RunFrom(&g.CodeBuffer, m.RootFragment.CodeBase); err != nil {
		var de *jit.DispatchError
		if errors.As(err, &de) {
			return de.Exception.AsValue(), nil
		}
		return value.Value{}, fmt.Errorf("compile: running module %q root fragment: %w", m.Name, err)
	}

	return value.Indeterminate_(), nil
}

// CompileFunctionFragment compiles frag (already appended to fn.Fragments
// with its concrete ArgTypes set) and publishes it. Exported for the JIT
// dispatcher, which creates the fragment and calls this once per
// distinct argument-type tuple.
func (v *Visitor) CompileFunctionFragment(g *ctx.GlobalContext, m *ctx.ModuleContext, fn *ctx.FunctionContext, frag *ctx.Fragment) error {
	return v.compileAndPublish(g, m, fn, frag)
}

// compileAndPublish runs one compilation pass over fn's body (or m's root
// body when fn is nil) into frag, then assembles, relocates, and appends
// the result to the shared code buffer.
func (v *Visitor) compileAndPublish(g *ctx.GlobalContext, m *ctx.ModuleContext, fn *ctx.FunctionContext, frag *ctx.Fragment) error {
	c := &compiler{
		g:      g,
		m:      m,
		fn:     fn,
		frag:   frag,
		em:     emitter.NewRecordingEmitter(),
		locals: make(map[string]localSlot),
	}
	c.splitLabels = make([]emitter.Label, c.numSplits())
	c.returnLabel = c.newLabel("Lret")

	var body []ast.Statement
	if fn != nil {
		if err := c.bindParams(fn, frag.ArgTypes); err != nil {
			return err
		}
		if fn.AST != nil {
			body = fn.AST.Body
		} else if fn.LambdaAST != nil {
			body = []ast.Statement{&ast.Return{Value: fn.LambdaAST.Body}}
		}
	} else {
		body = m.AST.Body
	}

	terminated := false
	if err := c.visitBlock(body); err != nil {
		if _, ok := err.(*errTerminatedBySplit); ok {
			terminated = true
		} else {
			return err
		}
	}

	if !terminated {
		switch {
		case fn != nil && fn.IsConstructor():
			c.addReturnType(value.InstanceType(fn.ClassID))
		case fn != nil && !c.sawReturn:
			c.em.LoadNoneLiteral(CallReturnReg)
			c.addReturnType(value.NoneValue())
		}
		c.em.DefineLabel(c.returnLabel)
		c.em.Halt()
		if err := c.finalizeReturnType(); err != nil {
			return err
		}
	} else {
		// A terminated pass leaves forward branch targets (an else arm, a
		// loop exit, the shared return label) referenced but unemitted.
		// Define every pending label at a trailing halt, so any path that
		// would need the missing code stops the frame instead of jumping
		// into undefined bytes.
		if rec, ok := c.em.(*emitter.RecordingEmitter); ok {
			for _, lbl := range rec.PendingLabels() {
				c.em.DefineLabel(lbl)
			}
		}
		c.em.Halt()
		if len(c.returnTypes) == 1 && c.returnTypes[0].Kind != value.Indeterminate {
			// Record what was discovered before the split; the
			// recompilation pass finalizes for real. Splits past the
			// termination point stay UnmaterializedSplit.
			c.frag.ReturnType = c.returnTypes[0]
		}
	}

	code, patchOffsets, labelOffsets, err := c.em.Assemble()
	if err != nil {
		return fmt.Errorf("compile: assembling %s: %w", c.describeScope(), err)
	}

	base := g.AppendCode(code)
	buf := g.CodeBuffer
	for off := range patchOffsets {
		abs := int(int32FromLE(buf[base+off:base+off+4])) + base
		putInt32LE(buf[base+off:base+off+4], int32(abs))
	}

	frag.Compiled = g.CodeBuffer[base : base+len(code)]
	frag.CodeBase = base
	frag.CompiledLabels = make(map[int][]string)
	for name, idxs := range labelOffsets {
		for _, off := range idxs {
			frag.CompiledLabels[off] = append(frag.CompiledLabels[off], string(name))
		}
	}

	frag.CallSplitOffsets = make([]int, len(c.splitLabels))
	for i := range frag.CallSplitOffsets {
		frag.CallSplitOffsets[i] = ctx.UnmaterializedSplit
	}
	frag.CallSplitLabels = make([]string, len(c.splitLabels))
	for i, lbl := range c.splitLabels {
		if lbl == "" {
			continue
		}
		frag.CallSplitLabels[i] = string(lbl)
		if offs, ok := labelOffsets[lbl]; ok && len(offs) > 0 {
			frag.CallSplitOffsets[i] = offs[0]
		}
	}

	m.CompiledBytes += int64(len(code))
	return nil
}

// addReturnType records one `return` statement's concrete type into this
// pass's own return-type set, deduplicating exactly as
// ctx.FunctionContext.AddReturnType does for the analysis visitor's
// whole-module accumulation. compile keeps a separate, per-fragment set
// because a specialization's concrete return type can be narrower than
// the function's analyzed (generic) return-type union.
func (c *compiler) addReturnType(v value.Value) {
	for _, existing := range c.returnTypes {
		if value.TypesEqual(existing, v) && value.Equal(existing, v) {
			return
		}
	}
	c.returnTypes = append(c.returnTypes, v)
}

func (c *compiler) describeScope() string {
	if c.fn != nil {
		return fmt.Sprintf("function %q", c.fn.Name)
	}
	return fmt.Sprintf("module %q root", c.m.Name)
}

// bindParams seeds the calling convention: argument i arrives in register
// i, per the save/restore protocol compileCall uses at every call site.
func (c *compiler) bindParams(fn *ctx.FunctionContext, argTypes []value.Value) error {
	for i, arg := range fn.Args {
		typ := value.Indeterminate_()
		if i < len(argTypes) {
			typ = argTypes[i]
		} else if arg.Type.Kind != value.Indeterminate {
			typ = arg.Type
		}
		reg := c.newReg()
		if reg != emitter.Reg(i) {
			return fmt.Errorf("compile: internal: parameter %d of %q did not receive calling-convention register %d", i, fn.Name, i)
		}
		c.locals[arg.Name] = localSlot{reg: reg, typ: typ}
	}
	return nil
}

func int32FromLE(b []byte) int32 {
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func putInt32LE(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}

// finalizeReturnType applies the spec's return-type finalization rule to
// the concrete return-type set this pass actually observed: empty ⇒ None,
// exactly one ⇒ that, more than one or still Indeterminate ⇒ error. An
// annotated return type must additionally accept whatever was inferred.
func (c *compiler) finalizeReturnType() error {
	if c.fn == nil {
		c.frag.ReturnType = value.NoneValue()
		return nil
	}
	switch len(c.returnTypes) {
	case 0:
		c.frag.ReturnType = value.NoneValue()
	case 1:
		if c.returnTypes[0].Kind == value.Indeterminate {
			return fmt.Errorf("compile: %s: return type could not be resolved to a concrete type", c.describeScope())
		}
		c.frag.ReturnType = c.returnTypes[0]
	default:
		return fmt.Errorf("compile: %s: fragment has %d distinct return types, want exactly one", c.describeScope(), len(c.returnTypes))
	}
	if c.fn.AnnotatedReturn != nil {
		if score, err := value.MatchValueToType(*c.fn.AnnotatedReturn, c.frag.ReturnType, c.g.IsSubtype); err != nil || score < 0 {
			return fmt.Errorf("compile: %s: inferred return type %s does not match annotation %s", c.describeScope(), c.frag.ReturnType.Kind, c.fn.AnnotatedReturn.Kind)
		}
	}
	return nil
}
