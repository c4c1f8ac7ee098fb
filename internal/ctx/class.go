package ctx

import (
	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/value"
)

// Attribute is one named, typed slot of a class's instance layout.
type Attribute struct {
	Name  string
	Value value.Value
}

// ClassContext describes one class declaration.
// Constructor id equals class id by convention.
type ClassContext struct {
	ID            int
	Module        *ModuleContext
	Name          string
	ParentClassID int // 0 for a root class
	AST           *ast.ClassDefinition

	Attributes       []Attribute
	AttributeIndexes map[string]int

	Destructor *FunctionContext
}

// NewClassContext allocates a class context with an empty attribute
// index map ready for the annotation visitor to populate.
func NewClassContext(id int, module *ModuleContext, name string) *ClassContext {
	return &ClassContext{
		ID:               id,
		Module:           module,
		Name:             name,
		AttributeIndexes: make(map[string]int),
	}
}

// HeaderSize and CellSize describe the instance layout convention:
// attributes sit at cell offsets header_size + index*cell_size. Concrete
// values are a matter of object-runtime layout, not of this pipeline's
// semantics, so they are small constants rather than configuration.
const (
	HeaderSize = 16
	CellSize   = 8
)

// AttributeOffset returns the byte offset of attribute i within an
// instance of this class.
func AttributeOffset(i int) int { return HeaderSize + i*CellSize }

// AddAttribute appends a new attribute, seeded Indeterminate. Callers must
// check HasAttribute first; duplicate detection is the annotation
// visitor's job.
func (c *ClassContext) AddAttribute(name string) {
	c.AttributeIndexes[name] = len(c.Attributes)
	c.Attributes = append(c.Attributes, Attribute{Name: name, Value: value.Indeterminate_()})
}

// HasAttribute reports whether name is already declared on this class,
// including the attributes InheritFrom copied in from its ancestors.
func (c *ClassContext) HasAttribute(name string) bool {
	_, ok := c.AttributeIndexes[name]
	return ok
}

// SetAttributeType updates the Value of an already-declared attribute.
func (c *ClassContext) SetAttributeType(name string, v value.Value) {
	if idx, ok := c.AttributeIndexes[name]; ok {
		c.Attributes[idx].Value = v
	}
}

// InheritFrom copies parent's attribute list as a prefix of this class's
// own.
// Must be called before any of this class's own attributes are added.
func (c *ClassContext) InheritFrom(parent *ClassContext) {
	c.ParentClassID = parent.ID
	c.Attributes = append(c.Attributes, parent.Attributes...)
	for name, idx := range parent.AttributeIndexes {
		c.AttributeIndexes[name] = idx
	}
}

// LookupAttribute looks up name, including attributes inherited from an
// ancestor (InheritFrom already copies those into AttributeIndexes).
func (c *ClassContext) LookupAttribute(name string) (value.Value, bool) {
	if idx, ok := c.AttributeIndexes[name]; ok {
		return c.Attributes[idx].Value, true
	}
	return value.Value{}, false
}
