package ast

// LValue is implemented by the node shapes eligible as assignment or
// augmented-assignment targets.
type LValue interface {
	Expression
	lvalueNode()
}

func (*VariableLookup) lvalueNode() {}
func (*AttributeLookup) lvalueNode() {}
func (*ArrayIndex) lvalueNode()      {}

// TupleTarget destructures an assignment across several targets, e.g.
// `a, b = pair`.
type TupleTarget struct {
	base
	Targets []LValue
}

func (*TupleTarget) expressionNode() {}
func (*TupleTarget) lvalueNode()     {}
