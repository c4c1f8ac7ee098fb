// Package value implements the tagged type+value lattice shared by every
// phase of the pipeline: the analysis visitor carries inferred types and
// constant-folded results in it, the compilation visitor describes a
// fragment's argument and return types with it, and the JIT dispatcher
// matches callsite argument tuples against compiled fragments through it.
//
// A Value is a small Kind tag plus typed payload fields, rather than one
// Go type per kind.
package value

import "fmt"

// Kind tags the shape of a Value.
type Kind byte

const (
	Indeterminate Kind = iota
	ExtensionTypeRef
	None
	Bool
	Int
	Float
	Bytes
	Unicode
	List
	Tuple
	Set
	Dict
	Function
	Class
	Instance
	Module
)

var kindNames = [...]string{
	Indeterminate:    "Indeterminate",
	ExtensionTypeRef: "ExtensionTypeReference",
	None:             "None",
	Bool:             "Bool",
	Int:              "Int",
	Float:            "Float",
	Bytes:            "Bytes",
	Unicode:          "Unicode",
	List:             "List",
	Tuple:            "Tuple",
	Set:              "Set",
	Dict:             "Dict",
	Function:         "Function",
	Class:            "Class",
	Instance:         "Instance",
	Module:           "Module",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a tagged type+value. The zero Value is Indeterminate.
//
// Invariants:
//   - Indeterminate never carries a known value (Known == false).
//   - Container kinds (List/Tuple/Set/Dict) carry Ext: one element for
//     List/Tuple/Set, two (key, value) for Dict.
//   - Function/Class carry an id in ID; Instance carries a class id in ID
//     and, optionally, known attribute values in Attrs.
//   - Module carries its name in Name.
type Value struct {
	Kind  Kind
	Known bool

	// Scalar payloads. Exactly one is meaningful, selected by Kind.
	Bool    bool
	Int     int64
	Float   float64
	Bytes   []byte
	Unicode string

	// Container payloads.
	Items []Value          // List/Tuple/Set, when Known
	Dict  []DictEntry       // Dict, when Known
	Ext   []Value           // extension types: element type(s); key,value for Dict

	// Reference payloads.
	ID    int               // Function id / Class id / Instance's class id
	Name  string             // Module name
	Attrs map[string]Value   // Instance known attributes, optional
}

// DictEntry is one known key/value pair of a Dict value.
type DictEntry struct {
	Key, Val Value
}

// Indeterminate_ is the canonical unknown value of unknown kind.
func Indeterminate_() Value { return Value{Kind: Indeterminate} }

// NoneValue is the single known None value.
func NoneValue() Value { return Value{Kind: None, Known: true} }

// BoolValue constructs a known Bool.
func BoolValue(b bool) Value { return Value{Kind: Bool, Known: true, Bool: b} }

// BoolType is the type-only (unknown) Bool.
func BoolType() Value { return Value{Kind: Bool} }

// IntValue constructs a known Int.
func IntValue(i int64) Value { return Value{Kind: Int, Known: true, Int: i} }

// IntType is the type-only Int.
func IntType() Value { return Value{Kind: Int} }

// FloatValue constructs a known Float.
func FloatValue(f float64) Value { return Value{Kind: Float, Known: true, Float: f} }

// FloatType is the type-only Float.
func FloatType() Value { return Value{Kind: Float} }

// BytesValue constructs a known Bytes value.
func BytesValue(b []byte) Value { return Value{Kind: Bytes, Known: true, Bytes: b} }

// BytesType is the type-only Bytes.
func BytesType() Value { return Value{Kind: Bytes} }

// UnicodeValue constructs a known Unicode value.
func UnicodeValue(s string) Value { return Value{Kind: Unicode, Known: true, Unicode: s} }

// UnicodeType is the type-only Unicode.
func UnicodeType() Value { return Value{Kind: Unicode} }

// emptyExt returns n extension slots seeded Indeterminate, the shape used
// for empty List/Set/Dict literals.
func emptyExt(n int) []Value {
	ext := make([]Value, n)
	for i := range ext {
		ext[i] = Indeterminate_()
	}
	return ext
}

// ListType builds a type-only List with the given element extension type.
func ListType(elem Value) Value { return Value{Kind: List, Ext: []Value{elem}} }

// EmptyListType builds the List type produced by an empty `[]` literal.
func EmptyListType() Value { return Value{Kind: List, Ext: emptyExt(1)} }

// ListValue builds a known List from items, typed by their homogeneous
// element kind (Indeterminate extension if items is empty or mixed).
func ListValue(items []Value) Value {
	return Value{Kind: List, Known: true, Items: items, Ext: []Value{elementExtent(items)}}
}

// TupleType/TupleValue mirror ListType/ListValue for Tuple.
func TupleType(elem Value) Value { return Value{Kind: Tuple, Ext: []Value{elem}} }
func EmptyTupleType() Value       { return Value{Kind: Tuple, Ext: emptyExt(1)} }
func TupleValue(items []Value) Value {
	return Value{Kind: Tuple, Known: true, Items: items, Ext: []Value{elementExtent(items)}}
}

// SetType/SetValue mirror ListType/ListValue for Set.
func SetType(elem Value) Value { return Value{Kind: Set, Ext: []Value{elem}} }
func EmptySetType() Value       { return Value{Kind: Set, Ext: emptyExt(1)} }
func SetValue(items []Value) Value {
	return Value{Kind: Set, Known: true, Items: items, Ext: []Value{elementExtent(items)}}
}

// DictType builds a type-only Dict with key/value extension types.
func DictType(key, val Value) Value { return Value{Kind: Dict, Ext: []Value{key, val}} }

// EmptyDictType builds the Dict type produced by an empty `{}` literal.
func EmptyDictType() Value { return Value{Kind: Dict, Ext: emptyExt(2)} }

// DictValue builds a known Dict from entries.
func DictValue(entries []DictEntry) Value {
	keys := make([]Value, len(entries))
	vals := make([]Value, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
		vals[i] = e.Val
	}
	return Value{
		Kind: Dict, Known: true, Dict: entries,
		Ext: []Value{elementExtent(keys), elementExtent(vals)},
	}
}

// elementExtent returns the homogeneous element kind of items as a
// type-only Value, or Indeterminate if items is empty or mixed-kind.
func elementExtent(items []Value) Value {
	if len(items) == 0 {
		return Indeterminate_()
	}
	first := items[0]
	for _, it := range items[1:] {
		if !TypesEqual(it, first) {
			return Indeterminate_()
		}
	}
	return ClearValue(first)
}

// FunctionValue/FunctionType reference a function context by id.
func FunctionValue(id int) Value { return Value{Kind: Function, Known: true, ID: id} }
func FunctionType() Value         { return Value{Kind: Function} }

// ClassValue/ClassType reference a class context by id.
func ClassValue(id int) Value { return Value{Kind: Class, Known: true, ID: id} }
func ClassTypeOnly() Value     { return Value{Kind: Class} }

// InstanceType builds a type-only Instance of the given class id.
func InstanceType(classID int) Value { return Value{Kind: Instance, ID: classID} }

// InstanceValue builds a known Instance, optionally with known attrs.
func InstanceValue(classID int, attrs map[string]Value) Value {
	return Value{Kind: Instance, Known: true, ID: classID, Attrs: attrs}
}

// ModuleValue references a module by name.
func ModuleValue(name string) Value { return Value{Kind: Module, Known: true, Name: name} }

// TypesEqual compares kind and recursive extension types only, ignoring
// known content. Instance comparison is by class id.
func TypesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Instance:
		return a.ID == b.ID
	case Function, Class:
		return true // a function/class-typed slot carries no extension type
	case Module:
		return a.Name == b.Name
	case List, Tuple, Set, Dict:
		if len(a.Ext) != len(b.Ext) {
			return false
		}
		for i := range a.Ext {
			if !TypesEqual(a.Ext[i], b.Ext[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Equal compares kind, extension types, and, when both are known, contents.
func Equal(a, b Value) bool {
	if !TypesEqual(a, b) {
		return false
	}
	if a.Known != b.Known {
		return false
	}
	if !a.Known {
		return true
	}
	switch a.Kind {
	case None:
		return true
	case Bool:
		return a.Bool == b.Bool
	case Int:
		return a.Int == b.Int
	case Float:
		return a.Float == b.Float
	case Bytes:
		return string(a.Bytes) == string(b.Bytes)
	case Unicode:
		return a.Unicode == b.Unicode
	case List, Tuple, Set:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !Equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	case Dict:
		if len(a.Dict) != len(b.Dict) {
			return false
		}
		for i := range a.Dict {
			if !Equal(a.Dict[i].Key, b.Dict[i].Key) || !Equal(a.Dict[i].Val, b.Dict[i].Val) {
				return false
			}
		}
		return true
	case Function, Class:
		return a.ID == b.ID
	case Instance:
		if len(a.Attrs) != len(b.Attrs) {
			return false
		}
		for k, av := range a.Attrs {
			bv, ok := b.Attrs[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case Module:
		return a.Name == b.Name
	default:
		return true
	}
}

// ClearValue demotes a known value to its type-only form, preserving
// extension types and ids but dropping known content.
func ClearValue(v Value) Value {
	cleared := Value{Kind: v.Kind, Ext: v.Ext, ID: v.ID, Name: v.Name}
	return cleared
}

// TruthValue reports the Python-style truthiness of a known value; it is
// only defined when v.Known.
func TruthValue(v Value) (bool, bool) {
	if !v.Known {
		return false, false
	}
	switch v.Kind {
	case None:
		return false, true
	case Bool:
		return v.Bool, true
	case Int:
		return v.Int != 0, true
	case Float:
		return v.Float != 0, true
	case Bytes:
		return len(v.Bytes) != 0, true
	case Unicode:
		return len(v.Unicode) != 0, true
	case List, Tuple, Set:
		return len(v.Items) != 0, true
	case Dict:
		return len(v.Dict) != 0, true
	default:
		return true, true
	}
}

func (v Value) String() string {
	if !v.Known {
		return v.Kind.String()
	}
	switch v.Kind {
	case None:
		return "None"
	case Bool:
		return fmt.Sprintf("%t", v.Bool)
	case Int:
		return fmt.Sprintf("%d", v.Int)
	case Float:
		return fmt.Sprintf("%g", v.Float)
	case Bytes:
		return fmt.Sprintf("b%q", string(v.Bytes))
	case Unicode:
		return fmt.Sprintf("%q", v.Unicode)
	default:
		return fmt.Sprintf("%s(known)", v.Kind)
	}
}
