package ctx

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bencz/python-jit/internal/value"
)

func TestClassAttributesInheritanceIsPrefix(t *testing.T) {
	parent := &ClassContext{ID: 1, Name: "B", AttributeIndexes: map[string]int{}}
	parent.AddAttribute("x")
	parent.AddAttribute("y")

	child := &ClassContext{ID: 2, Name: "D", AttributeIndexes: map[string]int{}}
	child.InheritFrom(parent)
	child.AddAttribute("z")

	if len(child.Attributes) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(child.Attributes))
	}
	for i := range parent.Attributes {
		if diff := cmp.Diff(parent.Attributes[i].Name, child.Attributes[i].Name); diff != "" {
			t.Errorf("parent attribute prefix mismatch at %d (-want +got):\n%s", i, diff)
		}
	}
	if child.Attributes[2].Name != "z" {
		t.Errorf("expected child's own attribute last, got %v", child.Attributes)
	}
}

func TestConstructorIDEqualsClassID(t *testing.T) {
	classID := 42
	ctor := NewFunctionContext(classID, nil, classID, "__init__")
	if !ctor.IsConstructor() {
		t.Error("function whose id equals its class id and class id != 0 should be a constructor")
	}
}

func TestFragmentArityMatchesFunctionArgs(t *testing.T) {
	f := NewFunctionContext(1, nil, 0, "f")
	f.Args = []ArgSpec{{Name: "x"}}
	frag := f.NewFragment([]value.Value{value.IntType()})
	if len(frag.ArgTypes) != len(f.Args) {
		t.Errorf("fragment arg_types length %d != function args length %d", len(frag.ArgTypes), len(f.Args))
	}
}

func TestFragmentSelectionIsMonotone(t *testing.T) {
	f := NewFunctionContext(1, nil, 0, "f")
	f.Args = []ArgSpec{{Name: "x"}}
	first := f.NewFragment([]value.Value{value.IntType()})
	first.ReturnType = value.IntType()

	if got, ok := f.FragmentFor([]value.Value{value.IntType()}); !ok || got != first {
		t.Error("repeat call with identical type tuple should select the existing fragment")
	}

	f.NewFragment([]value.Value{value.FloatType()})
	if got, ok := f.FragmentFor([]value.Value{value.IntType()}); !ok || got != first {
		t.Error("existing fragment for a previously-seen type tuple must still win over newer unrelated fragments")
	}
}

func TestIsSubtypeTransitiveChain(t *testing.T) {
	g := NewGlobalContext(nil)
	base := &ClassContext{ID: 100, Name: "A", AttributeIndexes: map[string]int{}}
	mid := &ClassContext{ID: 101, Name: "B", ParentClassID: 100, AttributeIndexes: map[string]int{}}
	leaf := &ClassContext{ID: 102, Name: "C", ParentClassID: 101, AttributeIndexes: map[string]int{}}
	g.RegisterClass(base)
	g.RegisterClass(mid)
	g.RegisterClass(leaf)

	if !g.IsSubtype(102, 100) {
		t.Error("C should be recognized as a transitive subtype of A")
	}
	if g.IsSubtype(100, 102) {
		t.Error("A should not be considered a subtype of its own descendant C")
	}
}

func TestGlobalContextIDAllocators(t *testing.T) {
	g := NewGlobalContext(nil)
	u1 := g.NextUserFunctionID()
	u2 := g.NextUserFunctionID()
	if u2 != u1+1 || u1 <= 0 {
		t.Errorf("user ids should be positive and monotonically increasing, got %d then %d", u1, u2)
	}
	b1 := g.NextBuiltinID()
	b2 := g.NextBuiltinID()
	if b2 != b1-1 || b1 >= 0 {
		t.Errorf("builtin ids should be negative and monotonically decreasing, got %d then %d", b1, b2)
	}
}

func TestScopeInProgressDetectsCycle(t *testing.T) {
	g := NewGlobalContext(nil)
	if err := g.EnterScope("a+ADVANCE"); err != nil {
		t.Fatalf("first entry should not error: %v", err)
	}
	if err := g.EnterScope("a+ADVANCE"); err == nil {
		t.Error("re-entry for the same scope token should be rejected as a cycle")
	}
	g.ExitScope("a+ADVANCE")
	if err := g.EnterScope("a+ADVANCE"); err != nil {
		t.Errorf("after exit, re-entry should succeed: %v", err)
	}
}

func TestConstantPoolDeduplication(t *testing.T) {
	g := NewGlobalContext(nil)
	a := g.InternUnicode("hello", false)
	b := g.InternUnicode("hello", false)
	if !value.Equal(a, b) {
		t.Error("identical unicode literals should intern to equal values")
	}
	c := g.InternUnicode("hello", true)
	if !value.Equal(a, c) {
		t.Error("no-share bypass should still produce an equal value, just not pooled")
	}
}
