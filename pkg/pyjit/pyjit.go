// Package pyjit is the public facade over the compiler pipeline: one
// Engine owns a GlobalContext, the phase driver, and the JIT dispatcher
// wired against each other, and exposes the handful of operations a host
// program needs to load a module, run it, and inspect what got compiled.
//
// There is no lexer or parser in this module, so LoadModule takes an
// already-built *ast.Module rather than source text; build one directly,
// or decode one from the JSON AST fixture format.
package pyjit

import (
	"bytes"
	"fmt"
	"io"
	"log"

	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/analyze"
	"github.com/bencz/python-jit/internal/annotate"
	"github.com/bencz/python-jit/internal/compile"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/jit"
	"github.com/bencz/python-jit/internal/objruntime"
	"github.com/bencz/python-jit/internal/phase"
)

// Option configures a new Engine.
type Option func(*options)

type options struct {
	importPaths []string
	runtime     objruntime.Runtime
	trace       io.Writer
}

// WithImportPaths sets the module search path consulted when resolving
// `import`. Without one, only modules the host loads directly via
// LoadModule are visible.
func WithImportPaths(paths ...string) Option {
	return func(o *options) { o.importPaths = paths }
}

// WithRuntime swaps in a custom object runtime in place of the reference
// in-memory Arena, e.g. to back bytes/unicode/list/dict/instance handles
// with a host-embedding's own object model.
func WithRuntime(rt objruntime.Runtime) Option {
	return func(o *options) { o.runtime = rt }
}

// WithTrace directs the phase driver's and dispatcher's log lines to w
// instead of an internal buffer. Without it, Result.Trace carries the log
// output of that one LoadModule call.
func WithTrace(w io.Writer) Option {
	return func(o *options) { o.trace = w }
}

// Engine owns one GlobalContext and the phase driver / dispatcher wired
// against it. A single Engine can load and run several modules, sharing
// one fragment cache and one code buffer across all of them.
type Engine struct {
	Global     *ctx.GlobalContext
	Driver     *phase.Driver
	Dispatcher *jit.Dispatcher
	Runtime    objruntime.Runtime

	traceBuf *bytes.Buffer
}

// New builds an Engine ready to load modules.
func New(opts ...Option) *Engine {
	cfg := options{runtime: objruntime.NewArena()}
	for _, opt := range opts {
		opt(&cfg)
	}

	var traceBuf *bytes.Buffer
	logOut := cfg.trace
	if logOut == nil {
		traceBuf = &bytes.Buffer{}
		logOut = traceBuf
	}
	logger := log.New(logOut, "", log.LstdFlags)

	g := ctx.NewGlobalContext(cfg.importPaths)
	comp := compile.New()
	driver := &phase.Driver{Compiler: comp, Runtime: cfg.runtime, Logger: logger}
	driver.Annotator = annotate.New(driver.AdvanceModule)
	driver.Analyzer = analyze.New(driver.AdvanceModule)

	disp := jit.New(g, driver, comp, logger)
	driver.Dispatch = disp.Compile

	return &Engine{Global: g, Driver: driver, Dispatcher: disp, Runtime: cfg.runtime, traceBuf: traceBuf}
}

// Result reports what advancing and running one module through the
// pipeline produced.
type Result struct {
	// Module is the module's own context after the run, including its
	// final Phase and CompiledBytes counter.
	Module *ctx.ModuleContext
	// Trace is every log line the phase driver and dispatcher produced
	// while loading and running the module, populated only when the
	// Engine wasn't given an explicit WithTrace writer.
	Trace string
}

// LoadModule registers src under name and advances it to ctx.Imported,
// compiling and running its root fragment along the way. A load-time
// exception (an unhandled raise, or a JIT compile failure) comes back as
// a non-nil error; phase.Driver already renders its class id and message
// into the error text.
func (e *Engine) LoadModule(name string, src *ast.Module) (Result, error) {
	m := e.Global.GetOrCreateModule(name, nil)
	m.AST = src

	err := e.Driver.AdvanceModule(e.Global, m, ctx.Imported)

	res := Result{Module: m}
	if e.traceBuf != nil {
		res.Trace = e.traceBuf.String()
	}
	if err != nil {
		return res, fmt.Errorf("pyjit: loading module %q: %w", name, err)
	}
	return res, nil
}

// Module looks up a previously loaded module by name.
func (e *Engine) Module(name string) (*ctx.ModuleContext, bool) {
	return e.Global.Module(name)
}

// Function looks up a function context by id, e.g. to inspect its
// compiled Fragments after a run.
func (e *Engine) Function(id int) (*ctx.FunctionContext, bool) {
	return e.Global.Function(id)
}

// CodeSize reports the total size, in bytes, of the shared global code
// buffer every compiled fragment across every module has been appended
// to.
func (e *Engine) CodeSize() int {
	return len(e.Global.CodeBuffer)
}
