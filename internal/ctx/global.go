// Package ctx implements the context registries of the compiler pipeline:
// the global context that owns everything, and the module, class,
// function and fragment contexts it owns by id. Contexts refer to each
// other by id through hash tables rather than owning pointers, so
// compilations can cross-reference modules, functions and classes without
// creating reference cycles between Go values.
package ctx

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/bencz/python-jit/internal/value"
)

// Sentinel class ids for built-in scalar/container/exception types,
// assigned once by NewGlobalContext. Attribute lookups on a built-in
// scalar kind use these to find the right ClassContext.
const (
	ObjectClassID = -1 - iota
	BytesObjectClassID
	UnicodeObjectClassID
	ListObjectClassID
	TupleObjectClassID
	SetObjectClassID
	DictObjectClassID
	ExceptionClassID
	AssertionErrorClassID
	IndexErrorClassID
	KeyErrorClassID
	OSErrorClassID
	PyJitCompilerErrorClassID
	TypeErrorClassID
	ValueErrorClassID
)

// UnresolvedFunctionCall is the callsite record the compilation visitor
// registers for every call site it emits, and the JIT dispatcher's sole
// means of recovering a call's context from a bare token.
type UnresolvedFunctionCall struct {
	Token             int
	CalleeFunctionID  int
	ArgTypes          []value.Value
	CallerModule      string
	CallerFunctionID  int // 0 for a module root caller
	CallerFragmentIdx int
	CallerSplitID     int
}

// GlobalContext owns every module, function, class and fragment reachable
// in a single program run, plus the monotonic id allocators and shared
// constant pools.
type GlobalContext struct {
	ImportPaths []string

	modules map[string]*ModuleContext

	bytesPool   map[string]value.Value
	unicodePool map[string]value.Value

	// constsPool backs InternConst/Const: the compilation visitor's one
	// mechanism for materializing a compile-time-known literal that is
	// not a bare Int/Float/Bool/None into a register, via
	// emitter.Emitter.LoadConst.
	constsPool []value.Value

	scopesInProgress map[string]bool

	nextUserFuncID  int
	nextBuiltinID   int
	nextCallsite    int

	functions map[int]*FunctionContext
	classes   map[int]*ClassContext

	// CodeBuffer accumulates the bytes emitted for every fragment compiled
	// so far.
	CodeBuffer []byte

	UnresolvedCallsites map[int]*UnresolvedFunctionCall

	// RunID is a correlation id stamped once per context by
	// NewGlobalContext. No diagnostic or log line reads it, and it plays no
	// part in any lookup key.
	RunID string
}

// NewGlobalContext builds a context with its sentinel classes and
// allocators initialized. User function/class ids are issued starting at
// 1 and increase; built-in ids start at -1 and decrease.
func NewGlobalContext(importPaths []string) *GlobalContext {
	g := &GlobalContext{
		ImportPaths:         importPaths,
		modules:             make(map[string]*ModuleContext),
		bytesPool:           make(map[string]value.Value),
		unicodePool:         make(map[string]value.Value),
		scopesInProgress:    make(map[string]bool),
		nextUserFuncID:      1,
		nextBuiltinID:       -1,
		nextCallsite:        1,
		functions:           make(map[int]*FunctionContext),
		classes:             make(map[int]*ClassContext),
		UnresolvedCallsites: make(map[int]*UnresolvedFunctionCall),
		RunID:               uuid.NewString(),
	}
	g.registerSentinelClasses()
	return g
}

func (g *GlobalContext) registerSentinelClasses() {
	builtinClasses := []struct {
		id     int
		name   string
		parent int
	}{
		{ObjectClassID, "object", 0},
		{BytesObjectClassID, "bytes", 0},
		{UnicodeObjectClassID, "str", 0},
		{ListObjectClassID, "list", 0},
		{TupleObjectClassID, "tuple", 0},
		{SetObjectClassID, "set", 0},
		{DictObjectClassID, "dict", 0},
		{ExceptionClassID, "Exception", 0},
		{AssertionErrorClassID, "AssertionError", ExceptionClassID},
		{IndexErrorClassID, "IndexError", ExceptionClassID},
		{KeyErrorClassID, "KeyError", ExceptionClassID},
		{OSErrorClassID, "OSError", ExceptionClassID},
		{PyJitCompilerErrorClassID, "PyJitCompilerError", ExceptionClassID},
		{TypeErrorClassID, "TypeError", ExceptionClassID},
		{ValueErrorClassID, "ValueError", ExceptionClassID},
	}
	for _, bc := range builtinClasses {
		g.classes[bc.id] = &ClassContext{
			ID:               bc.id,
			Name:             bc.name,
			ParentClassID:    bc.parent,
			AttributeIndexes: make(map[string]int),
		}
	}
}

// IsBuiltinName reports whether name is bound in the sentinel builtins
// registry (the built-in class names registered by
// registerSentinelClasses). The annotation visitor rejects writes that
// would shadow one of these.
func (g *GlobalContext) IsBuiltinName(name string) bool {
	for id, c := range g.classes {
		if id < 0 && c.Name == name {
			return true
		}
	}
	return false
}

// NextUserFunctionID allocates the next positive user function/class id.
func (g *GlobalContext) NextUserFunctionID() int {
	id := g.nextUserFuncID
	g.nextUserFuncID++
	return id
}

// NextBuiltinID allocates the next negative built-in function/class id.
func (g *GlobalContext) NextBuiltinID() int {
	id := g.nextBuiltinID
	g.nextBuiltinID--
	return id
}

// NextCallsiteToken issues a fresh monotonic callsite token.
func (g *GlobalContext) NextCallsiteToken() int {
	tok := g.nextCallsite
	g.nextCallsite++
	return tok
}

// RegisterFunction / RegisterClass / Function / Class store and retrieve
// contexts by id.
func (g *GlobalContext) RegisterFunction(f *FunctionContext) { g.functions[f.ID] = f }
func (g *GlobalContext) RegisterClass(c *ClassContext)       { g.classes[c.ID] = c }
func (g *GlobalContext) Function(id int) (*FunctionContext, bool) {
	f, ok := g.functions[id]
	return f, ok
}
func (g *GlobalContext) Class(id int) (*ClassContext, bool) {
	c, ok := g.classes[id]
	return c, ok
}

// FunctionsByModule returns every registered function/method/constructor
// whose Module is m, ordered by id for deterministic CLI output (disasm,
// compile --disassemble, the repl's disassembly). Used by cmd/pyjit, which has no other way to
// enumerate a module's functions: the annotation visitor only threads ids
// through AST nodes and GlobalContext.functions, never back through a
// per-module index.
func (g *GlobalContext) FunctionsByModule(m *ModuleContext) []*FunctionContext {
	var out []*FunctionContext
	for _, f := range g.functions {
		if f.Module == m {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClassByName finds a user class declared in m by its source name. Used by
// the annotation visitor to resolve a `class Child(Parent):` reference
// before Parent's own Value binding exists (that binding is only stamped
// once the analysis visitor runs).
func (g *GlobalContext) ClassByName(m *ModuleContext, name string) (*ClassContext, bool) {
	for _, c := range g.classes {
		if c.Module == m && c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// IsSubtype reports whether class `sub` equals or transitively extends
// class `sup`. Suitable as a value.SubtypeChecker.
func (g *GlobalContext) IsSubtype(sub, sup int) bool {
	seen := map[int]bool{}
	for cur := sub; cur != 0 && !seen[cur]; cur = g.parentOf(cur) {
		if cur == sup {
			return true
		}
		seen[cur] = true
	}
	return false
}

func (g *GlobalContext) parentOf(classID int) int {
	c, ok := g.classes[classID]
	if !ok {
		return 0
	}
	return c.ParentClassID
}

// GetOrCreateModule returns the existing module context for name, or
// creates a new Initial-phase one. src is nil for built-in modules.
func (g *GlobalContext) GetOrCreateModule(name string, src *string) *ModuleContext {
	if m, ok := g.modules[name]; ok {
		return m
	}
	m := &ModuleContext{
		Name:             name,
		Source:           src,
		Phase:            Initial,
		Globals:          newGlobalTable(),
		GlobalsHeapIndex: -1,
	}
	g.modules[name] = m
	return m
}

// Module looks up an already-created module by name.
func (g *GlobalContext) Module(name string) (*ModuleContext, bool) {
	m, ok := g.modules[name]
	return m, ok
}

// EnterScope inserts the scope-in-progress token used by the phase driver
// to detect recursive re-entry. It returns an error if the token
// is already present.
func (g *GlobalContext) EnterScope(token string) error {
	if g.scopesInProgress[token] {
		return fmt.Errorf("cyclic import or recompilation detected: %s already in progress", token)
	}
	g.scopesInProgress[token] = true
	return nil
}

// ExitScope releases a scope-in-progress token. Safe to call even if
// EnterScope failed, so callers can defer it unconditionally.
func (g *GlobalContext) ExitScope(token string) {
	delete(g.scopesInProgress, token)
}

// InternBytes / InternUnicode dedupe immutable constants by content.
// noShare bypasses the pool for mutable initializers.
func (g *GlobalContext) InternBytes(b []byte, noShare bool) value.Value {
	if noShare {
		return value.BytesValue(append([]byte(nil), b...))
	}
	key := string(b)
	if v, ok := g.bytesPool[key]; ok {
		return v
	}
	v := value.BytesValue(b)
	g.bytesPool[key] = v
	return v
}

func (g *GlobalContext) InternUnicode(s string, noShare bool) value.Value {
	if noShare {
		return value.UnicodeValue(s)
	}
	if v, ok := g.unicodePool[s]; ok {
		return v
	}
	v := value.UnicodeValue(s)
	g.unicodePool[s] = v
	return v
}

// InternConst appends v to the constants pool and returns its index,
// suitable for emitter.Emitter.LoadConst. Unlike InternBytes/InternUnicode
// this never dedupes: callers that want sharing should intern the
// Bytes/Unicode payload itself first and wrap the resulting shared Value.
func (g *GlobalContext) InternConst(v value.Value) int {
	g.constsPool = append(g.constsPool, v)
	return len(g.constsPool) - 1
}

// Const returns the constants-pool entry at idx, as an emitter.ConstLookup.
func (g *GlobalContext) Const(idx int) value.Value {
	return g.constsPool[idx]
}

// AppendCode appends compiled bytes to the shared code buffer and returns
// the base offset at which they were placed.
func (g *GlobalContext) AppendCode(b []byte) int {
	base := len(g.CodeBuffer)
	g.CodeBuffer = append(g.CodeBuffer, b...)
	return base
}
