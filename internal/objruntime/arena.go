package objruntime

import "fmt"

type objKind byte

const (
	kindBytes objKind = iota
	kindUnicode
	kindList
	kindDict
	kindInstance
)

type dictEntry struct {
	key, value Handle
}

type object struct {
	kind objKind

	bytes   []byte
	unicode string

	items           []Handle
	itemsAreObjects bool

	entries  []dictEntry
	keyLen   func(Handle) int
	keyAt    func(Handle, int) byte
	dictFlag DictFlag

	classID   int
	attrs     []Handle
	refcount  int
}

// Arena is the reference Runtime: a simple growable slice of objects, with
// DeleteReference only decrementing a bookkeeping counter rather than ever
// freeing storage. It is sized for driving the compiler pipeline's tests
// and CLI demos, not for production memory management.
type Arena struct {
	objects []*object
}

// NewArena returns an empty object arena.
func NewArena() *Arena { return &Arena{} }

func (a *Arena) alloc(o *object) Handle {
	a.objects = append(a.objects, o)
	return Handle(len(a.objects))
}

func (a *Arena) get(h Handle) (*object, error) {
	if h <= 0 || int(h) > len(a.objects) {
		return nil, fmt.Errorf("objruntime: invalid handle %d", h)
	}
	return a.objects[h-1], nil
}

func (a *Arena) BytesNew(b []byte) Handle {
	cp := append([]byte(nil), b...)
	return a.alloc(&object{kind: kindBytes, bytes: cp, refcount: 1})
}

func (a *Arena) UnicodeNew(s string) Handle {
	return a.alloc(&object{kind: kindUnicode, unicode: s, refcount: 1})
}

func (a *Arena) BytesAt(h Handle, i int) byte {
	o, err := a.get(h)
	if err != nil || o.kind != kindBytes || i < 0 || i >= len(o.bytes) {
		return 0
	}
	return o.bytes[i]
}

func (a *Arena) BytesLength(h Handle) int {
	o, err := a.get(h)
	if err != nil || o.kind != kindBytes {
		return 0
	}
	return len(o.bytes)
}

func (a *Arena) UnicodeEncodeASCII(h Handle) ([]byte, error) {
	o, err := a.get(h)
	if err != nil || o.kind != kindUnicode {
		return nil, fmt.Errorf("objruntime: handle %d is not unicode", h)
	}
	out := make([]byte, len(o.unicode))
	for i := 0; i < len(o.unicode); i++ {
		c := o.unicode[i]
		if c > 127 {
			return nil, fmt.Errorf("objruntime: non-ASCII code point at byte %d", i)
		}
		out[i] = c
	}
	return out, nil
}

func (a *Arena) BytesDecodeASCII(h Handle) (string, error) {
	o, err := a.get(h)
	if err != nil || o.kind != kindBytes {
		return "", fmt.Errorf("objruntime: handle %d is not bytes", h)
	}
	for i, b := range o.bytes {
		if b > 127 {
			return "", fmt.Errorf("objruntime: non-ASCII byte at index %d", i)
		}
	}
	return string(o.bytes), nil
}

func (a *Arena) ListNew(capacity int, itemsAreObjects bool) Handle {
	return a.alloc(&object{kind: kindList, items: make([]Handle, capacity), itemsAreObjects: itemsAreObjects, refcount: 1})
}

func (a *Arena) ListSet(h Handle, i int, v Handle) error {
	o, err := a.get(h)
	if err != nil || o.kind != kindList {
		return fmt.Errorf("objruntime: handle %d is not a list", h)
	}
	if i < 0 || i >= len(o.items) {
		return fmt.Errorf("objruntime: list index %d out of range", i)
	}
	o.items[i] = v
	return nil
}

func (a *Arena) DictionaryNew(keyLen func(Handle) int, keyAt func(Handle, int) byte, flags DictFlag) Handle {
	return a.alloc(&object{kind: kindDict, keyLen: keyLen, keyAt: keyAt, dictFlag: flags, refcount: 1})
}

func (a *Arena) sameKey(o *object, a1, b1 Handle) bool {
	if o.keyLen == nil {
		return a1 == b1
	}
	la, lb := o.keyLen(a1), o.keyLen(b1)
	if la != lb {
		return false
	}
	for i := 0; i < la; i++ {
		if o.keyAt(a1, i) != o.keyAt(b1, i) {
			return false
		}
	}
	return true
}

func (a *Arena) DictionaryInsert(h Handle, key, value Handle) error {
	o, err := a.get(h)
	if err != nil || o.kind != kindDict {
		return fmt.Errorf("objruntime: handle %d is not a dictionary", h)
	}
	for i, e := range o.entries {
		if a.sameKey(o, e.key, key) {
			o.entries[i].value = value
			return nil
		}
	}
	o.entries = append(o.entries, dictEntry{key: key, value: value})
	return nil
}

func (a *Arena) CreateInstance(classID int, attrCount int) Handle {
	return a.alloc(&object{kind: kindInstance, classID: classID, attrs: make([]Handle, attrCount), refcount: 1})
}

func (a *Arena) SetAttribute(h Handle, i int, v Handle) error {
	o, err := a.get(h)
	if err != nil || o.kind != kindInstance {
		return fmt.Errorf("objruntime: handle %d is not an instance", h)
	}
	if i < 0 || i >= len(o.attrs) {
		return fmt.Errorf("objruntime: attribute index %d out of range", i)
	}
	o.attrs[i] = v
	return nil
}

func (a *Arena) DeleteReference(h Handle) {
	o, err := a.get(h)
	if err != nil {
		return
	}
	if o.refcount > 0 {
		o.refcount--
	}
}

var _ Runtime = (*Arena)(nil)
