package astio

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"github.com/bencz/python-jit/ast"
)

// exportAll lets cmp.Diff look inside every node's embedded (unexported)
// position field; fixtures without "pos" decode to offset 0, same as a
// struct-literal expectation.
var exportAll = cmp.Exporter(func(reflect.Type) bool { return true })

func TestDecodeSimpleModule(t *testing.T) {
	doc := []byte(`{
		"type": "Module",
		"body": [
			{
				"type": "Assignment",
				"target": {"type": "VariableLookup", "name": "x"},
				"value": {"type": "Int", "value": 7}
			},
			{
				"type": "If",
				"cond": {"type": "Binary", "op": ">", "left": {"type": "VariableLookup", "name": "x"}, "right": {"type": "Int", "value": 0}},
				"body": [
					{"type": "Return", "value": {"type": "VariableLookup", "name": "x"}}
				],
				"elifs": [],
				"else": [
					{"type": "Return", "value": {"type": "NoneLiteral"}}
				]
			}
		]
	}`)

	got, err := Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want := &ast.Module{
		Body: []ast.Statement{
			&ast.Assignment{
				Target: &ast.VariableLookup{Name: "x"},
				Value:  &ast.Int{Value: 7},
			},
			&ast.If{
				Cond: &ast.Binary{
					Op:    ">",
					Left:  &ast.VariableLookup{Name: "x"},
					Right: &ast.Int{Value: 0},
				},
				Body:    []ast.Statement{&ast.Return{Value: &ast.VariableLookup{Name: "x"}}},
				Else:    []ast.Statement{&ast.Return{Value: &ast.NoneLiteral{}}},
				HasElse: true,
			},
		},
	}

	if diff := cmp.Diff(want, got, exportAll); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeFunctionDefinitionAndCall(t *testing.T) {
	doc := []byte(`{
		"type": "Module",
		"body": [
			{
				"type": "FunctionDefinition",
				"name": "add",
				"args": [{"name": "a"}, {"name": "b"}],
				"body": [
					{"type": "Return", "value": {"type": "Binary", "op": "+", "left": {"type": "VariableLookup", "name": "a"}, "right": {"type": "VariableLookup", "name": "b"}}}
				]
			},
			{
				"type": "ExpressionStatement",
				"expr": {
					"type": "FunctionCall",
					"callee": {"type": "VariableLookup", "name": "add"},
					"args": [
						{"value": {"type": "Int", "value": 1}},
						{"value": {"type": "Int", "value": 2}}
					]
				}
			}
		]
	}`)

	got, err := Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(got.Body) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(got.Body))
	}
	fn, ok := got.Body[0].(*ast.FunctionDefinition)
	if !ok {
		t.Fatalf("expected a FunctionDefinition, got %T", got.Body[0])
	}
	if fn.Name != "add" || len(fn.Args) != 2 {
		t.Fatalf("unexpected function shape: %+v", fn)
	}

	stmt, ok := got.Body[1].(*ast.ExpressionStatement)
	if !ok {
		t.Fatalf("expected an ExpressionStatement, got %T", got.Body[1])
	}
	call, ok := stmt.Expr.(*ast.FunctionCall)
	if !ok {
		t.Fatalf("expected a FunctionCall, got %T", stmt.Expr)
	}
	if len(call.Args) != 2 {
		t.Fatalf("expected 2 call args, got %d", len(call.Args))
	}
}

func TestDecodeRejectsNonModuleRoot(t *testing.T) {
	_, err := Decode([]byte(`{"type": "Int", "value": 1}`))
	if err == nil {
		t.Fatal("expected an error for a non-Module root node")
	}
}

func TestDecodeRejectsUnknownNodeType(t *testing.T) {
	_, err := Decode([]byte(`{"type": "Module", "body": [{"type": "Frobnicate"}]}`))
	if err == nil {
		t.Fatal("expected an error for an unrecognized node type")
	}
}

func TestDecodeRejectsInvalidAssignmentTarget(t *testing.T) {
	doc := []byte(`{
		"type": "Module",
		"body": [
			{
				"type": "Assignment",
				"target": {"type": "Int", "value": 1},
				"value": {"type": "Int", "value": 2}
			}
		]
	}`)
	if _, err := Decode(doc); err == nil {
		t.Fatal("expected an error when the assignment target is not an LValue")
	}
}

func TestPatchRewritesALeaf(t *testing.T) {
	doc := []byte(`{"type": "Int", "value": 1}`)

	patched, err := Patch(doc, "value", 9)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}

	got, err := decodeExpr(gjson.ParseBytes(patched))
	if err != nil {
		t.Fatalf("decodeExpr on patched document: %v", err)
	}
	n, ok := got.(*ast.Int)
	if !ok || n.Value != 9 {
		t.Fatalf("expected patched Int{Value: 9}, got %#v", got)
	}
}
