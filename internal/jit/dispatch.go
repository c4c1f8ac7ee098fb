// Package jit implements the JIT dispatcher: the runtime trampoline
// emitted code enters at an unresolved call site. Given a callsite token
// it chooses or creates the callee's compiled fragment, recompiles the
// caller fragment to incorporate the now-resolved call, and returns the
// resume address within the recompiled caller.
//
// Recompiling a caller can incidentally resolve more than one of its own
// splits, so a later dispatch against one of those splits skips straight
// to computing the resume address.
package jit

import (
	"fmt"
	"log"

	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/diag"
	"github.com/bencz/python-jit/internal/phase"
	"github.com/bencz/python-jit/internal/value"
)

// FragmentCompiler compiles or recompiles one fragment (a function
// specialization, or a module's root when fn is nil) and publishes it to
// the shared code buffer. Satisfied by the compilation visitor without
// this package importing its concrete type.
type FragmentCompiler interface {
	CompileFunctionFragment(g *ctx.GlobalContext, m *ctx.ModuleContext, fn *ctx.FunctionContext, frag *ctx.Fragment) error
}

// Dispatcher is the JIT dispatcher. Emitted code enters it synchronously
// through Compile; control does not return to the caller's fragment
// until compilation completes.
type Dispatcher struct {
	Global   *ctx.GlobalContext
	Phase    *phase.Driver
	Compiler FragmentCompiler

	Logger *log.Logger
}

// New builds a dispatcher wired against g: ph lazily advances a callee's
// module to Analyzed, comp compiles and recompiles fragments. Logger may
// be nil, in which case log.Default() is used.
func New(g *ctx.GlobalContext, ph *phase.Driver, comp FragmentCompiler, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{Global: g, Phase: ph, Compiler: comp, Logger: logger}
}

// DispatchError wraps the runtime exception instance a dispatch failure
// is reified into. The reference Machine has no separate exception-output
// register, so this error value is that out-parameter; a caller that
// wants the failure as a program-visible Instance value uses
// Exception.AsValue().
type DispatchError struct {
	Exception *diag.Exception
}

func (e *DispatchError) Error() string { return e.Exception.String() }

func (d *Dispatcher) fail(token int, filename string, line int, format string, args ...any) *DispatchError {
	msg := fmt.Sprintf(format, args...)
	exc := diag.CompilerError(ctx.PyJitCompilerErrorClassID, token, filename, line, msg)
	d.Logger.Printf("jit: dispatch failed for token %d: %s", token, msg)
	return &DispatchError{Exception: exc}
}

// Compile satisfies emitter.Dispatcher. regs is the machine's register
// file at the moment of the call; it goes unused because the callsite
// record already carries the concrete argument-type tuple.
func (d *Dispatcher) Compile(token int, regs []value.Value) (int, error) {
	_ = regs

	call, ok := d.Global.UnresolvedCallsites[token]
	if !ok {
		return 0, d.fail(token, "", 0, "unknown callsite token %d", token)
	}

	callerFrag, callerModule, err := d.callerFragment(call)
	if err != nil {
		return 0, d.fail(token, call.CallerModule, 0, "%s", err)
	}

	// A prior recompilation of this caller fragment (for a different
	// split) may have already resolved this split's call.
	if off, ok := callerFrag.ResumeAddress(call.CallerSplitID); ok {
		return callerFrag.CodeBase + off, nil
	}

	calleeFn, err := d.resolveCallee(call)
	if err != nil {
		return 0, d.fail(token, call.CallerModule, 0, "%s", err)
	}

	frag, found := calleeFn.BestFragmentFor(call.ArgTypes, d.Global.IsSubtype)
	if !found {
		frag = calleeFn.NewFragment(call.ArgTypes)
	}
	if !frag.Published() {
		if err := d.Compiler.CompileFunctionFragment(d.Global, calleeFn.Module, calleeFn, frag); err != nil {
			return 0, d.fail(token, call.CallerModule, 0, "compiling %q: %s", calleeFn.Name, err)
		}
		d.Logger.Printf("jit: compiled %q fragment %d for arg types %v", calleeFn.Name, frag.Index, frag.ArgTypes)
	}

	var callerFn *ctx.FunctionContext
	if call.CallerFunctionID != 0 {
		callerFn, ok = d.Global.Function(call.CallerFunctionID)
		if !ok {
			return 0, d.fail(token, call.CallerModule, 0, "unknown caller function id %d", call.CallerFunctionID)
		}
	}
	if err := d.Compiler.CompileFunctionFragment(d.Global, callerModule, callerFn, callerFrag); err != nil {
		return 0, d.fail(token, call.CallerModule, 0, "recompiling caller: %s", err)
	}

	off, ok := callerFrag.ResumeAddress(call.CallerSplitID)
	if !ok {
		return 0, d.fail(token, call.CallerModule, 0, "caller split %d did not materialize after recompilation", call.CallerSplitID)
	}
	return callerFrag.CodeBase + off, nil
}

// callerFragment resolves the caller's fragment, by function id plus
// fragment index, or the caller module's root fragment when
// CallerFunctionID is 0.
func (d *Dispatcher) callerFragment(call *ctx.UnresolvedFunctionCall) (*ctx.Fragment, *ctx.ModuleContext, error) {
	m, ok := d.Global.Module(call.CallerModule)
	if !ok {
		return nil, nil, fmt.Errorf("unknown caller module %q", call.CallerModule)
	}
	if call.CallerFunctionID == 0 {
		if m.RootFragment == nil {
			return nil, nil, fmt.Errorf("module %q has no root fragment", call.CallerModule)
		}
		return m.RootFragment, m, nil
	}
	fn, ok := d.Global.Function(call.CallerFunctionID)
	if !ok {
		return nil, nil, fmt.Errorf("unknown caller function id %d", call.CallerFunctionID)
	}
	if call.CallerFragmentIdx < 0 || call.CallerFragmentIdx >= len(fn.Fragments) {
		return nil, nil, fmt.Errorf("caller function %q has no fragment %d", fn.Name, call.CallerFragmentIdx)
	}
	return fn.Fragments[call.CallerFragmentIdx], fn.Module, nil
}

// resolveCallee looks up the callee function context and advances its
// module to Analyzed, which may re-enter the phase driver for a module
// other than the caller's own.
func (d *Dispatcher) resolveCallee(call *ctx.UnresolvedFunctionCall) (*ctx.FunctionContext, error) {
	fn, ok := d.Global.Function(call.CalleeFunctionID)
	if !ok {
		return nil, fmt.Errorf("unknown callee function id %d", call.CalleeFunctionID)
	}
	if fn.Module != nil && d.Phase != nil {
		if err := d.Phase.AdvanceModule(d.Global, fn.Module, ctx.Analyzed); err != nil {
			return nil, fmt.Errorf("advancing callee module %q: %w", fn.Module.Name, err)
		}
	}
	return fn, nil
}
