// Package ast defines the Abstract Syntax Tree node set consumed by the
// compiler pipeline. No lexer or parser lives in this module; nodes are
// built either by an external front end or, in tests, directly as struct
// literals.
package ast

// Offset is a byte offset into the originating source file. Every node
// carries one for diagnostics.
type Offset int

// Node is the base interface implemented by every AST node.
type Node interface {
	Pos() Offset
}

// Statement is any node that performs an action rather than producing a
// value.
type Statement interface {
	Node
	statementNode()
}

// Expression is any node that produces a value.
type Expression interface {
	Node
	expressionNode()
}

// Module is the root node of a parsed source file.
type Module struct {
	Body []Statement
	At   Offset
}

func (m *Module) Pos() Offset { return m.At }

// base embeds a file offset; concrete nodes compose it to satisfy Node.
type base struct {
	At Offset
}

func (b base) Pos() Offset { return b.At }
