package ctx

import (
	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/value"
)

// Phase is a module's position in the Initial→Parsed→Annotated→Analyzed→
// Imported state machine.
type Phase int

const (
	Initial Phase = iota
	Parsed
	Annotated
	Analyzed
	Imported
)

func (p Phase) String() string {
	switch p {
	case Initial:
		return "Initial"
	case Parsed:
		return "Parsed"
	case Annotated:
		return "Annotated"
	case Analyzed:
		return "Analyzed"
	case Imported:
		return "Imported"
	default:
		return "Unknown"
	}
}

// GlobalFlag marks properties of one module global slot.
type GlobalFlag int

const (
	Mutable GlobalFlag = 1 << iota
	StaticInitialize
)

// GlobalSlot is one entry of a module's ordered globals map.
type GlobalSlot struct {
	Name  string
	Value value.Value
	Index int // dense position in [0, N)
	Flags GlobalFlag
}

// GlobalTable is the ordered name→slot map backing ModuleContext.Globals.
// Order of insertion is preserved because slot indices are handed out
// densely and must remain stable once issued.
type GlobalTable struct {
	order []string
	byName map[string]*GlobalSlot
}

func newGlobalTable() *GlobalTable {
	return &GlobalTable{byName: make(map[string]*GlobalSlot)}
}

// Lookup returns the slot for name, if it exists.
func (t *GlobalTable) Lookup(name string) (*GlobalSlot, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// Define creates a new slot for name at the next dense index. Callers (the
// annotation visitor) must check Lookup first; redefining a name would
// orphan its old slot.
func (t *GlobalTable) Define(name string, flags GlobalFlag) *GlobalSlot {
	slot := &GlobalSlot{Name: name, Value: value.Indeterminate_(), Index: len(t.order), Flags: flags}
	t.byName[name] = slot
	t.order = append(t.order, name)
	return slot
}

// Len reports the number of defined globals.
func (t *GlobalTable) Len() int { return len(t.order) }

// Names returns globals in declaration order.
func (t *GlobalTable) Names() []string { return t.order }

// Slot returns the slot at position i in declaration order.
func (t *GlobalTable) Slot(i int) *GlobalSlot { return t.byName[t.order[i]] }

// Cell is one contiguous global-space storage cell. Payload is an opaque
// handle into the object runtime (a pointer, in spec terms) for reference
// kinds, or a raw scalar for None/Bool/Int/Float.
type Cell struct {
	Written bool
	Payload any
}

// ModuleContext is one loaded source module.
type ModuleContext struct {
	Name   string
	Source *string // absent (nil) for built-ins
	AST    *ast.Module
	Phase  Phase

	Globals *GlobalTable
	GlobalSpace []Cell

	RootFragment         *Fragment
	RootFragmentNumSplits int

	CompiledBytes int64

	// GlobalsHeapIndex is the reference Machine heap index holding this
	// module's globals-space snapshot (see emitter.Machine.Globals), -1
	// until the compilation visitor binds it the first time this module's
	// root fragment runs on a Machine.
	GlobalsHeapIndex int
}

// AllocateGlobalSpace sizes GlobalSpace to match Globals once the module
// reaches Analyzed.
func (m *ModuleContext) AllocateGlobalSpace() {
	m.GlobalSpace = make([]Cell, m.Globals.Len())
}

// AllSlotsWritten reports whether every global cell has been initialized,
// the invariant the phase driver must guarantee before a module is
// considered Analyzed.
func (m *ModuleContext) AllSlotsWritten() bool {
	for _, c := range m.GlobalSpace {
		if !c.Written {
			return false
		}
	}
	return true
}
