package ctx

import (
	"github.com/bencz/python-jit/ast"
	"github.com/bencz/python-jit/internal/value"
)

// ArgSpec describes one formal parameter of a FunctionContext.
type ArgSpec struct {
	Name       string
	Default    ast.Expression // nil if none
	Annotation ast.Expression // nil if none
	Type       value.Value    // resolved by the analysis visitor
}

// FunctionContext describes one function, method, or lambda. ClassID is 0 for a free function; it equals ID for
// a class's constructor (see ClassContext doc comment).
type FunctionContext struct {
	ID      int
	Module  *ModuleContext
	ClassID int
	Name    string
	AST     *ast.FunctionDefinition

	// LambdaAST is set instead of AST when this context describes a
	// LambdaDefinition, which has no FunctionDefinition node of its own.
	LambdaAST *ast.LambdaDefinition

	Args             []ArgSpec
	VarargsName      string
	VarkwargsName    string
	ExplicitGlobals  map[string]bool
	Locals           map[string]value.Value

	returnTypes      []value.Value // set, deduplicated by TypesEqual+Equal
	AnnotatedReturn  *value.Value

	NumSplits int
	Fragments []*Fragment
}

// NewFunctionContext allocates a function context with empty maps ready
// for the annotation visitor to populate.
func NewFunctionContext(id int, module *ModuleContext, classID int, name string) *FunctionContext {
	return &FunctionContext{
		ID:              id,
		Module:          module,
		ClassID:         classID,
		Name:            name,
		ExplicitGlobals: make(map[string]bool),
		Locals:          make(map[string]value.Value),
	}
}

// IsConstructor reports whether this function is a class's `__init__`.
func (f *FunctionContext) IsConstructor() bool { return f.ClassID != 0 && f.ID == f.ClassID }

// AddReturnType records one `return` expression's inferred type into the
// function's return-type set. Values
// that are TypesEqual and Equal to an already-recorded one are not
// duplicated.
func (f *FunctionContext) AddReturnType(v value.Value) {
	for _, existing := range f.returnTypes {
		if value.TypesEqual(existing, v) && value.Equal(existing, v) {
			return
		}
	}
	f.returnTypes = append(f.returnTypes, v)
}

// ReturnTypes exposes the accumulated return-type set.
func (f *FunctionContext) ReturnTypes() []value.Value { return f.returnTypes }

// FragmentFor returns the existing fragment whose arg types are
// TypesEqual to argTypes on every argument, if any. An instance of a
// subclass does not count as equal here, though MatchValueToType scores it
// 0.
func (f *FunctionContext) FragmentFor(argTypes []value.Value) (*Fragment, bool) {
	for _, frag := range f.Fragments {
		if len(frag.ArgTypes) != len(argTypes) {
			continue
		}
		exact := true
		for i := range argTypes {
			if !value.TypesEqual(frag.ArgTypes[i], argTypes[i]) {
				exact = false
				break
			}
		}
		if exact {
			return frag, true
		}
	}
	return nil, false
}

// BestFragmentFor searches for the fragment whose arg types are the
// cheapest MatchValuesToTypes fit for argTypes (fragment arg types are
// "expected", argTypes is "actual"), keeping the first fragment
// encountered on a tie. It returns false if no fragment's arity matches
// or every candidate fails to match at all.
func (f *FunctionContext) BestFragmentFor(argTypes []value.Value, isSubtype value.SubtypeChecker) (*Fragment, bool) {
	var best *Fragment
	bestScore := -1
	for _, frag := range f.Fragments {
		if len(frag.ArgTypes) != len(argTypes) {
			continue
		}
		score, err := value.MatchValuesToTypes(frag.ArgTypes, argTypes, isSubtype)
		if err != nil || score < 0 {
			continue
		}
		if best == nil || score < bestScore {
			best, bestScore = frag, score
		}
	}
	return best, best != nil
}

// NewFragment appends and returns a fresh fragment specialized to
// argTypes.
func (f *FunctionContext) NewFragment(argTypes []value.Value) *Fragment {
	frag := &Fragment{
		Function: f,
		Index:    len(f.Fragments),
		ArgTypes: argTypes,
		ReturnType: value.Indeterminate_(),
	}
	f.Fragments = append(f.Fragments, frag)
	return frag
}
