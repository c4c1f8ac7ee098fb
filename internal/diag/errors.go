// Package diag renders compile-time errors and runtime exceptions with
// source context: a file/line header, the offending source line, and a
// caret pointing at the column.
package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Kind classifies a CompileError by the pipeline stage that raised it.
type Kind int

const (
	Lex Kind = iota
	Parse
	Annotation
	Analysis
	Compile
	FragmentResolution
	Cycle
)

func (k Kind) String() string {
	switch k {
	case Lex:
		return "lex"
	case Parse:
		return "parse"
	case Annotation:
		return "annotation"
	case Analysis:
		return "analysis"
	case Compile:
		return "compile"
	case FragmentResolution:
		return "fragment resolution"
	case Cycle:
		return "cycle"
	default:
		return "error"
	}
}

// Position is a resolved line/column pair, computed on demand from an
// ast.Offset and the originating source text (the AST itself only carries
// a byte offset).
type Position struct {
	Line, Column int
}

// ResolvePosition walks source up to offset counting newlines, the same
// strategy a line-oriented lexer uses to stamp token positions.
func ResolvePosition(source string, offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(source) {
		offset = len(source)
	}
	line, col := 1, 1
	for i := 0; i < offset; i++ {
		if source[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return Position{Line: line, Column: col}
}

// CompileError is one compile-time error.
type CompileError struct {
	Kind    Kind
	Message string
	File    string
	Source  string
	Offset  int
	HasPos  bool
}

func (e *CompileError) Error() string { return e.Format(false) }

// Format renders the error with a file/line header, source excerpt, and
// caret, optionally colorized.
func (e *CompileError) Format(useColor bool) string {
	var sb strings.Builder
	bold := color.New(color.Bold)
	red := color.New(color.FgRed, color.Bold)
	if !useColor {
		bold.DisableColor()
		red.DisableColor()
	}

	if e.HasPos {
		pos := ResolvePosition(e.Source, e.Offset)
		if e.File != "" {
			sb.WriteString(bold.Sprintf("%s error in %s:%d:%d\n", e.Kind, e.File, pos.Line, pos.Column))
		} else {
			sb.WriteString(bold.Sprintf("%s error at line %d:%d\n", e.Kind, pos.Line, pos.Column))
		}
		if line := sourceLine(e.Source, pos.Line); line != "" {
			prefix := fmt.Sprintf("%4d | ", pos.Line)
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
			sb.WriteString(strings.Repeat(" ", len(prefix)+pos.Column-1))
			sb.WriteString(red.Sprint("^"))
			sb.WriteString("\n")
		}
	} else if e.File != "" {
		sb.WriteString(bold.Sprintf("%s error in %s\n", e.Kind, e.File))
	} else {
		sb.WriteString(bold.Sprintf("%s error\n", e.Kind))
	}
	sb.WriteString(e.Message)
	return sb.String()
}

func sourceLine(source string, lineNum int) string {
	if source == "" || lineNum < 1 {
		return ""
	}
	lines := strings.Split(source, "\n")
	if lineNum > len(lines) {
		return ""
	}
	return lines[lineNum-1]
}

// ShouldColorize reports whether fd looks like an interactive terminal.
func ShouldColorize(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// New builds a positioned CompileError.
func New(kind Kind, file, source string, offset int, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, File: file, Source: source, Offset: offset, HasPos: true, Message: fmt.Sprintf(format, args...)}
}

// NewUnpositioned builds a CompileError with no source offset.
func NewUnpositioned(kind Kind, file, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, File: file, Message: fmt.Sprintf(format, args...)}
}
