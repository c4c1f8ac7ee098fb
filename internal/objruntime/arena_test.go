package objruntime

import "testing"

func TestBytesRoundTrip(t *testing.T) {
	a := NewArena()
	h := a.BytesNew([]byte("hi"))
	if a.BytesLength(h) != 2 {
		t.Fatalf("BytesLength = %d, want 2", a.BytesLength(h))
	}
	if a.BytesAt(h, 0) != 'h' || a.BytesAt(h, 1) != 'i' {
		t.Fatalf("BytesAt mismatch")
	}
	s, err := a.BytesDecodeASCII(h)
	if err != nil || s != "hi" {
		t.Fatalf("BytesDecodeASCII = %q, %v", s, err)
	}
}

func TestUnicodeEncodeASCIIRejectsNonASCII(t *testing.T) {
	a := NewArena()
	h := a.UnicodeNew("café")
	if _, err := a.UnicodeEncodeASCII(h); err == nil {
		t.Fatalf("expected error encoding non-ASCII unicode as ASCII")
	}
}

func TestListSetAndBounds(t *testing.T) {
	a := NewArena()
	l := a.ListNew(2, false)
	if err := a.ListSet(l, 0, a.BytesNew([]byte("x"))); err != nil {
		t.Fatalf("ListSet: %v", err)
	}
	if err := a.ListSet(l, 5, Handle(0)); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestDictionaryInsertDedupesByKeyContent(t *testing.T) {
	a := NewArena()
	d := a.DictionaryNew(a.BytesLength, a.BytesAt, KeysAreObjects|ValuesAreObjects)
	k1 := a.BytesNew([]byte("k"))
	k2 := a.BytesNew([]byte("k")) // distinct handle, same content
	v1 := a.BytesNew([]byte("v1"))
	v2 := a.BytesNew([]byte("v2"))

	if err := a.DictionaryInsert(d, k1, v1); err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if err := a.DictionaryInsert(d, k2, v2); err != nil {
		t.Fatalf("insert 2: %v", err)
	}

	obj, err := a.get(d)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(obj.entries) != 1 {
		t.Fatalf("want one deduplicated entry, got %d", len(obj.entries))
	}
	if obj.entries[0].value != v2 {
		t.Fatalf("want second insert to overwrite value, got handle %d", obj.entries[0].value)
	}
}

func TestCreateInstanceSetAttribute(t *testing.T) {
	a := NewArena()
	inst := a.CreateInstance(42, 2)
	if err := a.SetAttribute(inst, 0, a.BytesNew([]byte("v"))); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	if err := a.SetAttribute(inst, 9, Handle(0)); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestDeleteReferenceOnInvalidHandleIsSafe(t *testing.T) {
	a := NewArena()
	a.DeleteReference(Handle(999)) // must not panic
}
