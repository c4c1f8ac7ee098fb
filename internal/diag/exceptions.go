package diag

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/bencz/python-jit/internal/value"
)

// Exception is a runtime exception instance: a class id plus attribute
// values. A user-defined exception class and a PyJitCompilerError share
// this one representation.
type Exception struct {
	ClassID int
	Attrs   map[string]value.Value

	// CorrelationID is attached purely for observability; it plays no
	// part in dispatcher lookups, which key exclusively on the callsite
	// token.
	CorrelationID string
}

// NewException builds an exception instance with a fresh correlation id.
func NewException(classID int, attrs map[string]value.Value) *Exception {
	return &Exception{ClassID: classID, Attrs: attrs, CorrelationID: uuid.NewString()}
}

// AsValue exposes the exception as a Value of kind Instance, for use
// anywhere a Value is expected (e.g. propagating through the analysis
// visitor's return-type tracking for a function that always raises).
func (e *Exception) AsValue() value.Value {
	return value.InstanceValue(e.ClassID, e.Attrs)
}

func (e *Exception) String() string {
	if msg, ok := e.Attrs["message"]; ok && msg.Known && msg.Kind == value.Unicode {
		return fmt.Sprintf("class %d: %s", e.ClassID, msg.Unicode)
	}
	return fmt.Sprintf("class %d", e.ClassID)
}

// CompilerError builds the PyJitCompilerError instance the dispatcher
// reifies a compilation failure into: "{callsite_token,
// filename, line, message}".
func CompilerError(classID int, token int, filename string, line int, message string) *Exception {
	return NewException(classID, map[string]value.Value{
		"token":    value.IntValue(int64(token)),
		"filename": value.UnicodeValue(filename),
		"line":     value.IntValue(int64(line)),
		"message":  value.UnicodeValue(message),
	})
}
