// Package objruntime defines the heap-object surface the phase driver and
// compilation visitor materialize values through: bytes/unicode scalars,
// lists, dictionaries, and class instances, each as an opaque handle. A
// real embedding backs this with its own reference counting and memory
// layout; this package fixes the contract and ships a small reference
// implementation good enough to run the pipeline end to end.
package objruntime

// DictFlag marks refcounted key/value kinds so a runtime can decide
// whether dictionary_insert needs to retain a reference.
type DictFlag uint64

const (
	KeysAreObjects DictFlag = 1 << iota
	ValuesAreObjects
)

// Handle is an opaque reference to a heap object. The zero Handle never
// denotes a live object.
type Handle int64

// Runtime is the object-construction surface used to materialize
// compile-time-known values (module-level static initializers, interned
// constants) into heap objects a compiled fragment can load through
// base+offset addressing.
type Runtime interface {
	// BytesNew copies b into a new immutable bytes object.
	BytesNew(b []byte) Handle
	// UnicodeNew copies s into a new immutable unicode object.
	UnicodeNew(s string) Handle

	// BytesAt and BytesLength read back a BytesNew handle one byte at a
	// time, keeping dictionary key comparison representation-agnostic.
	BytesAt(h Handle, i int) byte
	BytesLength(h Handle) int

	// UnicodeEncodeASCII decodes the unicode object at h as ASCII,
	// returning an error if it contains a non-ASCII code point.
	UnicodeEncodeASCII(h Handle) ([]byte, error)
	// BytesDecodeASCII decodes the bytes object at h as ASCII, returning
	// an error if any byte is non-ASCII.
	BytesDecodeASCII(h Handle) (string, error)

	// ListNew allocates a list of the given capacity. itemsAreObjects
	// marks whether elements are themselves handles needing refcounting.
	ListNew(capacity int, itemsAreObjects bool) Handle
	// ListSet stores v at index i of the list at h.
	ListSet(h Handle, i int, v Handle) error

	// DictionaryNew allocates an empty dictionary. keyLen/keyAt let the
	// runtime hash and compare keys without knowing their concrete kind.
	DictionaryNew(keyLen func(Handle) int, keyAt func(Handle, int) byte, flags DictFlag) Handle
	// DictionaryInsert stores value under key in the dictionary at h.
	DictionaryInsert(h Handle, key, value Handle) error

	// CreateInstance allocates a zeroed instance of classID with attrCount
	// attribute cells.
	CreateInstance(classID int, attrCount int) Handle
	// SetAttribute stores v at attribute index i of the instance at h.
	SetAttribute(h Handle, i int, v Handle) error

	// DeleteReference releases one reference to h. The reference Arena
	// never frees storage; it only decrements a bookkeeping count, keeping
	// the interface shape faithful to a refcounted backend.
	DeleteReference(h Handle)
}
