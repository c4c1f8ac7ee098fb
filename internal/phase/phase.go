// Package phase implements the module phase driver: the state machine
// that advances a module through Initial, Parsed, Annotated, Analyzed and
// Imported, running the annotation and analysis visitors and materializing
// static globals along the way. It is the top-level entry point a caller
// uses to get a module ready to compile and execute.
package phase

import (
	"fmt"
	"log"
	"math"

	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/emitter"
	"github.com/bencz/python-jit/internal/objruntime"
	"github.com/bencz/python-jit/internal/value"
)

// Annotator runs the annotation visitor over a module's AST.
type Annotator interface {
	Annotate(g *ctx.GlobalContext, m *ctx.ModuleContext) error
}

// Analyzer runs the analysis visitor over an already-annotated module.
type Analyzer interface {
	Analyze(g *ctx.GlobalContext, m *ctx.ModuleContext) error
}

// Compiler compiles and executes a module's root fragment, returning a
// nullable exception value (Kind == value.Indeterminate means "no
// exception").
type Compiler interface {
	CompileAndRunRoot(g *ctx.GlobalContext, m *ctx.ModuleContext, rt objruntime.Runtime, disp emitter.Dispatcher) (value.Value, error)
}

// Driver advances modules through the phase state machine.
type Driver struct {
	Annotator Annotator
	Analyzer  Analyzer
	Compiler  Compiler
	Runtime   objruntime.Runtime
	Dispatch  emitter.Dispatcher

	Logger *log.Logger
}

// NewDriver builds a Driver wired with its collaborators. Logger may be
// nil, in which case log.Default() is used.
func NewDriver(ann Annotator, ana Analyzer, comp Compiler, rt objruntime.Runtime, disp emitter.Dispatcher, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{Annotator: ann, Analyzer: ana, Compiler: comp, Runtime: rt, Dispatch: disp, Logger: logger}
}

// AdvanceModule drives m through single-step transitions, in order, until
// it reaches target or a step fails. It is a no-op if m is already at or
// past target.
func (d *Driver) AdvanceModule(g *ctx.GlobalContext, m *ctx.ModuleContext, target ctx.Phase) error {
	if m.Phase >= target {
		return nil
	}
	token := m.Name + "+ADVANCE"
	if err := g.EnterScope(token); err != nil {
		return fmt.Errorf("phase: %w", err)
	}
	defer g.ExitScope(token)

	for m.Phase < target {
		if err := d.step(g, m); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) step(g *ctx.GlobalContext, m *ctx.ModuleContext) error {
	switch m.Phase {
	case ctx.Initial:
		return d.toParsed(m)
	case ctx.Parsed:
		return d.toAnnotated(g, m)
	case ctx.Annotated:
		return d.toAnalyzed(g, m)
	case ctx.Analyzed:
		return d.toImported(g, m)
	default:
		return fmt.Errorf("phase: module %q already Imported", m.Name)
	}
}

func (d *Driver) toParsed(m *ctx.ModuleContext) error {
	if m.Source != nil && m.AST == nil {
		return fmt.Errorf("phase: module %q has a source handle but no AST installed; an external front end must parse it first", m.Name)
	}
	m.Phase = ctx.Parsed
	return nil
}

func (d *Driver) toAnnotated(g *ctx.GlobalContext, m *ctx.ModuleContext) error {
	if d.Annotator == nil {
		return fmt.Errorf("phase: no annotator configured for module %q", m.Name)
	}
	if err := d.Annotator.Annotate(g, m); err != nil {
		return fmt.Errorf("phase: annotating %q: %w", m.Name, err)
	}
	m.Phase = ctx.Annotated
	return nil
}

func (d *Driver) toAnalyzed(g *ctx.GlobalContext, m *ctx.ModuleContext) error {
	if d.Analyzer == nil {
		return fmt.Errorf("phase: no analyzer configured for module %q", m.Name)
	}
	if err := d.Analyzer.Analyze(g, m); err != nil {
		return fmt.Errorf("phase: analyzing %q: %w", m.Name, err)
	}
	m.AllocateGlobalSpace()
	if err := d.staticInitialize(g, m); err != nil {
		return fmt.Errorf("phase: static-initializing %q: %w", m.Name, err)
	}
	if !m.AllSlotsWritten() {
		return fmt.Errorf("phase: module %q has unwritten global cells after static initialization", m.Name)
	}
	m.Phase = ctx.Analyzed
	return nil
}

func (d *Driver) toImported(g *ctx.GlobalContext, m *ctx.ModuleContext) error {
	if d.Compiler == nil {
		return fmt.Errorf("phase: no compiler configured for module %q", m.Name)
	}
	exc, err := d.Compiler.CompileAndRunRoot(g, m, d.Runtime, d.Dispatch)
	if err != nil {
		return fmt.Errorf("phase: compiling root fragment of %q: %w", m.Name, err)
	}
	if exc.Kind != value.Indeterminate {
		msg := "<no message>"
		if attr, ok := exc.Attrs["message"]; ok && attr.Known && attr.Kind == value.Unicode {
			msg = attr.Unicode
		}
		return fmt.Errorf("phase: module %q failed at load time: class %d: %s", m.Name, exc.ID, msg)
	}
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("phase: module %q imported (%d bytes compiled)", m.Name, m.CompiledBytes)
	m.Phase = ctx.Imported
	return nil
}

// staticInitialize materializes every StaticInitialize-flagged global's
// cell from its known value, per the kind table: Bytes/Unicode/List/Dict
// become heap handles, Function/Class become a context id carried as a
// scalar, and None/Bool/Int/Float are stored directly. Set/Tuple are
// rejected with a clear error. Slots without the flag are zeroed, so every
// cell has been written by the time the module is considered Analyzed.
func (d *Driver) staticInitialize(g *ctx.GlobalContext, m *ctx.ModuleContext) error {
	for i := 0; i < m.Globals.Len(); i++ {
		slot := m.Globals.Slot(i)
		if slot.Flags&ctx.StaticInitialize == 0 {
			m.GlobalSpace[slot.Index] = ctx.Cell{Written: true}
			continue
		}
		cell, err := d.materialize(g, slot.Value, slot.Flags&ctx.Mutable != 0)
		if err != nil {
			return fmt.Errorf("global %q: %w", slot.Name, err)
		}
		m.GlobalSpace[slot.Index] = cell
	}
	return nil
}

func (d *Driver) materialize(g *ctx.GlobalContext, v value.Value, noShare bool) (ctx.Cell, error) {
	switch v.Kind {
	case value.None, value.Bool, value.Int, value.Float:
		return ctx.Cell{Written: true, Payload: v}, nil
	case value.Bytes:
		if d.Runtime == nil {
			return ctx.Cell{}, fmt.Errorf("no object runtime configured")
		}
		interned := g.InternBytes(v.Bytes, noShare)
		return ctx.Cell{Written: true, Payload: d.Runtime.BytesNew(interned.Bytes)}, nil
	case value.Unicode:
		if d.Runtime == nil {
			return ctx.Cell{}, fmt.Errorf("no object runtime configured")
		}
		interned := g.InternUnicode(v.Unicode, noShare)
		return ctx.Cell{Written: true, Payload: d.Runtime.UnicodeNew(interned.Unicode)}, nil
	case value.List:
		return d.materializeList(g, v)
	case value.Dict:
		return d.materializeDict(g, v)
	case value.Function:
		return ctx.Cell{Written: true, Payload: v.ID}, nil
	case value.Class:
		return ctx.Cell{Written: true, Payload: v.ID}, nil
	case value.Set, value.Tuple:
		return ctx.Cell{}, fmt.Errorf("static initialization of %s globals is not supported", v.Kind)
	default:
		return ctx.Cell{Written: true, Payload: v}, nil
	}
}

func (d *Driver) materializeList(g *ctx.GlobalContext, v value.Value) (ctx.Cell, error) {
	if d.Runtime == nil {
		return ctx.Cell{}, fmt.Errorf("no object runtime configured")
	}
	itemsAreObjects := len(v.Ext) > 0 && kindHasRefcount(v.Ext[0].Kind)
	h := d.Runtime.ListNew(len(v.Items), itemsAreObjects)
	for i, item := range v.Items {
		itemCell, err := d.materialize(g, item, false)
		if err != nil {
			return ctx.Cell{}, err
		}
		handle, err := cellBits(itemCell)
		if err != nil {
			return ctx.Cell{}, fmt.Errorf("list element %d: %w", i, err)
		}
		if err := d.Runtime.ListSet(h, i, handle); err != nil {
			return ctx.Cell{}, err
		}
	}
	return ctx.Cell{Written: true, Payload: h}, nil
}

// cellBits flattens a materialized cell to the raw int-sized bits a
// container slot holds: a heap handle for object kinds, a context id for
// Function/Class, the scalar bits for None/Bool/Int/Float.
func cellBits(c ctx.Cell) (objruntime.Handle, error) {
	switch p := c.Payload.(type) {
	case objruntime.Handle:
		return p, nil
	case int:
		return objruntime.Handle(p), nil
	case value.Value:
		switch p.Kind {
		case value.None:
			return 0, nil
		case value.Bool:
			if p.Bool {
				return 1, nil
			}
			return 0, nil
		case value.Int:
			return objruntime.Handle(p.Int), nil
		case value.Float:
			return objruntime.Handle(math.Float64bits(p.Float)), nil
		}
	}
	return 0, fmt.Errorf("cell payload %T does not flatten to int-sized bits", c.Payload)
}

func (d *Driver) materializeDict(g *ctx.GlobalContext, v value.Value) (ctx.Cell, error) {
	if d.Runtime == nil {
		return ctx.Cell{}, fmt.Errorf("no object runtime configured")
	}
	var flags objruntime.DictFlag
	if len(v.Ext) == 2 {
		if kindHasRefcount(v.Ext[0].Kind) {
			flags |= objruntime.KeysAreObjects
		}
		if kindHasRefcount(v.Ext[1].Kind) {
			flags |= objruntime.ValuesAreObjects
		}
	}
	rt := d.Runtime
	// Bytes keys dedupe by content; every other key kind compares by its
	// raw cell bits (nil accessors select the runtime's identity compare).
	var keyLen func(objruntime.Handle) int
	var keyAt func(objruntime.Handle, int) byte
	if len(v.Ext) == 2 && v.Ext[0].Kind == value.Bytes {
		keyLen, keyAt = rt.BytesLength, rt.BytesAt
	}
	h := rt.DictionaryNew(keyLen, keyAt, flags)
	for _, entry := range v.Dict {
		kc, err := d.materialize(g, entry.Key, false)
		if err != nil {
			return ctx.Cell{}, err
		}
		vc, err := d.materialize(g, entry.Val, false)
		if err != nil {
			return ctx.Cell{}, err
		}
		kh, err := cellBits(kc)
		if err != nil {
			return ctx.Cell{}, fmt.Errorf("dictionary key: %w", err)
		}
		vh, err := cellBits(vc)
		if err != nil {
			return ctx.Cell{}, fmt.Errorf("dictionary value: %w", err)
		}
		if err := rt.DictionaryInsert(h, kh, vh); err != nil {
			return ctx.Cell{}, err
		}
	}
	return ctx.Cell{Written: true, Payload: h}, nil
}

func kindHasRefcount(k value.Kind) bool {
	switch k {
	case value.Bytes, value.Unicode, value.List, value.Tuple, value.Set, value.Dict, value.Instance:
		return true
	default:
		return false
	}
}
