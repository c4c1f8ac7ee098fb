package value

import "testing"

func TestTypesEqual(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Value
		expected bool
	}{
		{"same ints", IntValue(1), IntValue(2), true},
		{"int vs float", IntType(), FloatType(), false},
		{"same empty lists", EmptyListType(), EmptyListType(), true},
		{"list of int vs list of float", ListType(IntType()), ListType(FloatType()), false},
		{"same instance class", InstanceType(5), InstanceType(5), true},
		{"different instance class", InstanceType(5), InstanceType(6), false},
		{"same module", ModuleValue("a"), ModuleValue("a"), true},
		{"different module", ModuleValue("a"), ModuleValue("b"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypesEqual(tt.a, tt.b); got != tt.expected {
				t.Errorf("TypesEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestTypesEqualTransitive(t *testing.T) {
	a := IntType()
	b := IntType()
	c := IntType()
	if !(TypesEqual(a, b) && TypesEqual(b, c) && TypesEqual(a, c)) {
		t.Error("types_equal should be transitive over identical concrete types")
	}
}

func TestEqualComparesKnownContent(t *testing.T) {
	if !Equal(IntValue(3), IntValue(3)) {
		t.Error("equal ints with same content should compare equal")
	}
	if Equal(IntValue(3), IntValue(4)) {
		t.Error("equal ints with different content should not compare equal")
	}
	if Equal(IntValue(3), IntType()) {
		t.Error("known value should not equal type-only value of same kind")
	}
}

func TestClearValueDemotesToTypeOnly(t *testing.T) {
	known := IntValue(42)
	cleared := ClearValue(known)
	if cleared.Known {
		t.Error("ClearValue should demote Known to false")
	}
	if cleared.Kind != Int {
		t.Errorf("ClearValue should preserve Kind, got %v", cleared.Kind)
	}
}

func TestTruthValueOnlyDefinedWhenKnown(t *testing.T) {
	if _, ok := TruthValue(IntType()); ok {
		t.Error("TruthValue should be undefined for a type-only value")
	}
	truth, ok := TruthValue(IntValue(0))
	if !ok || truth {
		t.Errorf("TruthValue(0) = (%v, %v), want (false, true)", truth, ok)
	}
	truth, ok = TruthValue(IntValue(5))
	if !ok || !truth {
		t.Errorf("TruthValue(5) = (%v, %v), want (true, true)", truth, ok)
	}
}

func TestEmptyContainerLiteralIsIndeterminateExtension(t *testing.T) {
	l := EmptyListType()
	if len(l.Ext) != 1 || l.Ext[0].Kind != Indeterminate {
		t.Errorf("empty list literal type should carry a single Indeterminate extension, got %v", l.Ext)
	}
	d := EmptyDictType()
	if len(d.Ext) != 2 || d.Ext[0].Kind != Indeterminate || d.Ext[1].Kind != Indeterminate {
		t.Errorf("empty dict literal type should carry two Indeterminate extensions, got %v", d.Ext)
	}
}

func TestMatchValueToType(t *testing.T) {
	if s, err := MatchValueToType(IntType(), IntType(), nil); err != nil || s != 0 {
		t.Errorf("match_value_to_type(T, T) = (%d, %v), want (0, nil)", s, err)
	}
	if s, err := MatchValueToType(Indeterminate_(), IntType(), nil); err != nil || s != 1 {
		t.Errorf("match_value_to_type(Indeterminate, T) = (%d, %v), want (1, nil)", s, err)
	}
	if _, err := MatchValueToType(IntType(), Indeterminate_(), nil); err == nil {
		t.Error("match_value_to_type(T, Indeterminate) should be an error")
	}
	if s, _ := MatchValueToType(FloatType(), IntType(), nil); s != -1 {
		t.Errorf("mismatched kinds should score -1, got %d", s)
	}
}

func TestMatchValueToTypeSubclass(t *testing.T) {
	isSubtype := func(sub, sup int) bool { return sub == 2 && sup == 1 } // D extends B
	score, err := MatchValueToType(InstanceType(1), InstanceType(2), isSubtype)
	if err != nil || score != 0 {
		t.Errorf("subclass instance should match with score 0, got (%d, %v)", score, err)
	}
	if score, _ := MatchValueToType(InstanceType(1), InstanceType(3), isSubtype); score != -1 {
		t.Errorf("unrelated instance should not match, got %d", score)
	}
}

func TestMatchValuesToTypesArityMismatch(t *testing.T) {
	if _, err := MatchValuesToTypes([]Value{IntType()}, nil, nil); err == nil {
		t.Error("arity mismatch should error")
	}
}
