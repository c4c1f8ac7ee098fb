package ast

// Int is an integer literal.
type Int struct {
	base
	Value int64
}

func (*Int) expressionNode() {}

// Float is a floating-point literal.
type Float struct {
	base
	Value float64
}

func (*Float) expressionNode() {}

// Bytes is a bytes-literal (e.g. b"...").
type Bytes struct {
	base
	Value []byte
}

func (*Bytes) expressionNode() {}

// Unicode is a text-string literal.
type Unicode struct {
	base
	Value string
}

func (*Unicode) expressionNode() {}

// True, False and NoneLiteral are the singleton boolean/none literals.
type True struct{ base }
type False struct{ base }
type NoneLiteral struct{ base }

func (*True) expressionNode()        {}
func (*False) expressionNode()       {}
func (*NoneLiteral) expressionNode() {}
