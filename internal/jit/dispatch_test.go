package jit

import (
	"errors"
	"testing"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/phase"
	"github.com/bencz/python-jit/internal/value"
)

// stubFragmentCompiler fakes C6: it never inspects the AST, it just
// appends a fixed-size code block and fills in CallSplitOffsets densely,
// enough to exercise the dispatcher's own bookkeeping.
type stubFragmentCompiler struct {
	calls []string
	err   error
}

func (s *stubFragmentCompiler) CompileFunctionFragment(g *ctx.GlobalContext, m *ctx.ModuleContext, fn *ctx.FunctionContext, frag *ctx.Fragment) error {
	name := "<root>"
	numSplits := m.RootFragmentNumSplits
	if fn != nil {
		name = fn.Name
		numSplits = fn.NumSplits
	}
	s.calls = append(s.calls, name)
	if s.err != nil {
		return s.err
	}
	code := make([]byte, numSplits*2+2)
	base := g.AppendCode(code)
	frag.Compiled = g.CodeBuffer[base : base+len(code)]
	frag.CodeBase = base
	frag.CallSplitOffsets = make([]int, numSplits)
	for i := range frag.CallSplitOffsets {
		frag.CallSplitOffsets[i] = i * 2
	}
	return nil
}

func newTestModule(g *ctx.GlobalContext, name string) *ctx.ModuleContext {
	m := g.GetOrCreateModule(name, nil)
	m.AST = &ast.Module{}
	m.Phase = ctx.Analyzed
	return m
}

func TestDispatcherCompilesCalleeAndRecompilesCaller(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newTestModule(g, "m")

	callee := ctx.NewFunctionContext(g.NextUserFunctionID(), m, 0, "f")
	g.RegisterFunction(callee)

	m.RootFragmentNumSplits = 1
	m.RootFragment = &ctx.Fragment{
		ReturnType:       value.Indeterminate_(),
		Compiled:         []byte{0, 0},
		CallSplitOffsets: []int{ctx.UnmaterializedSplit},
	}

	token := g.NextCallsiteToken()
	g.UnresolvedCallsites[token] = &ctx.UnresolvedFunctionCall{
		Token:            token,
		CalleeFunctionID: callee.ID,
		CallerModule:     "m",
		CallerFunctionID: 0,
		CallerSplitID:    0,
	}

	comp := &stubFragmentCompiler{}
	d := New(g, phase.NewDriver(nil, nil, nil, nil, nil, nil), comp, nil)

	addr, err := d.Compile(token, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(callee.Fragments) != 1 {
		t.Fatalf("expected one callee fragment, got %d", len(callee.Fragments))
	}
	if !callee.Fragments[0].Published() {
		t.Fatalf("callee fragment was not published")
	}
	wantAddr := m.RootFragment.CodeBase + 0
	if addr != wantAddr {
		t.Errorf("resume address = %d, want %d", addr, wantAddr)
	}
	if len(comp.calls) != 2 || comp.calls[0] != "f" || comp.calls[1] != "<root>" {
		t.Errorf("expected callee then caller to be compiled in order, got %v", comp.calls)
	}
}

func TestDispatcherSkipsCompilationWhenSplitAlreadyResolved(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newTestModule(g, "m")

	callee := ctx.NewFunctionContext(g.NextUserFunctionID(), m, 0, "f")
	g.RegisterFunction(callee)

	m.RootFragment = &ctx.Fragment{
		ReturnType:       value.Indeterminate_(),
		Compiled:         []byte{0, 0, 0, 0},
		CodeBase:         100,
		CallSplitOffsets: []int{2},
	}

	token := g.NextCallsiteToken()
	g.UnresolvedCallsites[token] = &ctx.UnresolvedFunctionCall{
		Token:            token,
		CalleeFunctionID: callee.ID,
		CallerModule:     "m",
		CallerFunctionID: 0,
		CallerSplitID:    0,
	}

	comp := &stubFragmentCompiler{err: nil}
	d := New(g, nil, comp, nil)

	addr, err := d.Compile(token, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if addr != 102 {
		t.Errorf("resume address = %d, want 102", addr)
	}
	if len(comp.calls) != 0 {
		t.Errorf("expected no compilation when split already resolved, got %v", comp.calls)
	}
}

func TestDispatcherReportsUnknownToken(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	d := New(g, nil, &stubFragmentCompiler{}, nil)

	_, err := d.Compile(999, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown callsite token")
	}
	de, ok := err.(*DispatchError)
	if !ok {
		t.Fatalf("error type = %T, want *DispatchError", err)
	}
	if de.Exception.ClassID != ctx.PyJitCompilerErrorClassID {
		t.Errorf("exception class id = %d, want %d", de.Exception.ClassID, ctx.PyJitCompilerErrorClassID)
	}
}

func TestDispatcherReportsCompileFailure(t *testing.T) {
	g := ctx.NewGlobalContext(nil)
	m := newTestModule(g, "m")

	callee := ctx.NewFunctionContext(g.NextUserFunctionID(), m, 0, "f")
	g.RegisterFunction(callee)

	m.RootFragment = &ctx.Fragment{
		ReturnType:       value.Indeterminate_(),
		Compiled:         []byte{0, 0},
		CallSplitOffsets: []int{ctx.UnmaterializedSplit},
	}

	token := g.NextCallsiteToken()
	g.UnresolvedCallsites[token] = &ctx.UnresolvedFunctionCall{
		Token:            token,
		CalleeFunctionID: callee.ID,
		CallerModule:     "m",
		CallerFunctionID: 0,
		CallerSplitID:    0,
	}

	comp := &stubFragmentCompiler{err: errors.New("boom")}
	d := New(g, phase.NewDriver(nil, nil, nil, nil, nil, nil), comp, nil)

	_, err := d.Compile(token, nil)
	if err == nil {
		t.Fatal("expected an error when the callee fails to compile")
	}
	if _, ok := err.(*DispatchError); !ok {
		t.Fatalf("error type = %T, want *DispatchError", err)
	}
}
