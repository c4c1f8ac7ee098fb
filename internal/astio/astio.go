// Package astio loads the JSON AST-fixture format that stands in for a
// lexer and parser: an external front end is expected to hand the
// pipeline an *ast.Module already built, and tests and the CLI read that
// tree from a small JSON document instead, one object per node with a
// "type" discriminator matching the ast package's Go type names.
//
// gjson's path-based Get walks the untyped document directly, so no
// intermediate per-node decoding structs are needed.
package astio

import (
	"encoding/base64"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/bencz/python-jit/ast"
)

// Decode parses a JSON AST-fixture document into a Module. The root object
// must have type "Module".
func Decode(data []byte) (*ast.Module, error) {
	root := gjson.ParseBytes(data)
	if !root.Exists() || !root.IsObject() {
		return nil, fmt.Errorf("astio: document is not a JSON object")
	}
	if t := root.Get("type").String(); t != "Module" {
		return nil, fmt.Errorf("astio: root node type %q, want \"Module\"", t)
	}
	body, err := decodeBlock(root.Get("body"))
	if err != nil {
		return nil, fmt.Errorf("astio: module body: %w", err)
	}
	return &ast.Module{Body: body, At: offsetOf(root)}, nil
}

// Patch applies a single sjson set-path mutation to a raw AST document
// without decoding it first, e.g. `astio.Patch(doc, "body.0.value.value",
// 7)` to flip a module's first literal. Used by fixture tests that want to
// perturb one field of a large hand-written document, and by cmd/pyjit's
// `run --patch path=value` flag.
func Patch(data []byte, path string, value any) ([]byte, error) {
	out, err := sjson.SetBytes(data, path, value)
	if err != nil {
		return nil, fmt.Errorf("astio: patching %q: %w", path, err)
	}
	return out, nil
}

func offsetOf(v gjson.Result) ast.Offset { return ast.Offset(v.Get("pos").Int()) }

func nodeType(v gjson.Result) string { return v.Get("type").String() }

func decodeBlock(v gjson.Result) ([]ast.Statement, error) {
	if !v.Exists() {
		return nil, nil
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("expected an array of statements, got %s", v.Type)
	}
	var out []ast.Statement
	var firstErr error
	v.ForEach(func(_, item gjson.Result) bool {
		s, err := decodeStmt(item)
		if err != nil {
			firstErr = err
			return false
		}
		out = append(out, s)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func decodeExprList(v gjson.Result) ([]ast.Expression, error) {
	if !v.Exists() {
		return nil, nil
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("expected an array of expressions, got %s", v.Type)
	}
	var out []ast.Expression
	var firstErr error
	v.ForEach(func(_, item gjson.Result) bool {
		e, err := decodeExpr(item)
		if err != nil {
			firstErr = err
			return false
		}
		out = append(out, e)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func decodeNames(v gjson.Result) []string {
	if !v.Exists() {
		return nil
	}
	var out []string
	v.ForEach(func(_, item gjson.Result) bool {
		out = append(out, item.String())
		return true
	})
	return out
}

func decodeOptExpr(v gjson.Result) (ast.Expression, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	return decodeExpr(v)
}

func decodeLValue(v gjson.Result) (ast.LValue, error) {
	e, err := decodeExpr(v)
	if err != nil {
		return nil, err
	}
	lv, ok := e.(ast.LValue)
	if !ok {
		return nil, fmt.Errorf("node type %q is not a valid assignment target", nodeType(v))
	}
	return lv, nil
}

func decodeParams(v gjson.Result) ([]ast.Param, error) {
	if !v.Exists() {
		return nil, nil
	}
	var out []ast.Param
	var firstErr error
	v.ForEach(func(_, item gjson.Result) bool {
		def, err := decodeOptExpr(item.Get("default"))
		if err != nil {
			firstErr = err
			return false
		}
		ann, err := decodeOptExpr(item.Get("annotation"))
		if err != nil {
			firstErr = err
			return false
		}
		out = append(out, ast.Param{Name: item.Get("name").String(), Default: def, Annotation: ann})
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func decodeStmt(v gjson.Result) (ast.Statement, error) {
	switch t := nodeType(v); t {
	case "ExpressionStatement":
		e, err := decodeExpr(v.Get("expr"))
		if err != nil {
			return nil, err
		}
		return &ast.ExpressionStatement{Expr: e}, nil

	case "Assignment":
		target, err := decodeLValue(v.Get("target"))
		if err != nil {
			return nil, err
		}
		val, err := decodeExpr(v.Get("value"))
		if err != nil {
			return nil, err
		}
		return &ast.Assignment{Target: target, Value: val}, nil

	case "Augment":
		target, err := decodeLValue(v.Get("target"))
		if err != nil {
			return nil, err
		}
		val, err := decodeExpr(v.Get("value"))
		if err != nil {
			return nil, err
		}
		return &ast.Augment{Target: target, Op: v.Get("op").String(), Value: val}, nil

	case "Delete":
		target, err := decodeLValue(v.Get("target"))
		if err != nil {
			return nil, err
		}
		return &ast.Delete{Target: target}, nil

	case "Import":
		var names []ast.ImportName
		v.Get("names").ForEach(func(_, n gjson.Result) bool {
			names = append(names, ast.ImportName{Path: n.Get("path").String(), As: n.Get("as").String()})
			return true
		})
		return &ast.Import{From: v.Get("from").String(), Names: names, Star: v.Get("star").Bool()}, nil

	case "Global":
		return &ast.Global{Names: decodeNames(v.Get("names"))}, nil

	case "Exec":
		code, err := decodeExpr(v.Get("code"))
		if err != nil {
			return nil, err
		}
		return &ast.Exec{Code: code}, nil

	case "Assert":
		cond, err := decodeExpr(v.Get("cond"))
		if err != nil {
			return nil, err
		}
		msg, err := decodeOptExpr(v.Get("message"))
		if err != nil {
			return nil, err
		}
		return &ast.Assert{Cond: cond, Message: msg}, nil

	case "Break":
		return &ast.Break{}, nil
	case "Continue":
		return &ast.Continue{}, nil

	case "Return":
		val, err := decodeOptExpr(v.Get("value"))
		if err != nil {
			return nil, err
		}
		return &ast.Return{Value: val}, nil

	case "Raise":
		exc, err := decodeOptExpr(v.Get("exc"))
		if err != nil {
			return nil, err
		}
		return &ast.Raise{Exc: exc}, nil

	case "If":
		cond, err := decodeExpr(v.Get("cond"))
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(v.Get("body"))
		if err != nil {
			return nil, err
		}
		var elifs []ast.Elif
		var elifErr error
		v.Get("elifs").ForEach(func(_, e gjson.Result) bool {
			ec, err := decodeExpr(e.Get("cond"))
			if err != nil {
				elifErr = err
				return false
			}
			eb, err := decodeBlock(e.Get("body"))
			if err != nil {
				elifErr = err
				return false
			}
			elifs = append(elifs, ast.Elif{Cond: ec, Body: eb})
			return true
		})
		if elifErr != nil {
			return nil, elifErr
		}
		hasElse := v.Get("else").Exists()
		elseBody, err := decodeBlock(v.Get("else"))
		if err != nil {
			return nil, err
		}
		return &ast.If{Cond: cond, Body: body, Elifs: elifs, Else: elseBody, HasElse: hasElse}, nil

	case "For":
		iter, err := decodeExpr(v.Get("iter"))
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(v.Get("body"))
		if err != nil {
			return nil, err
		}
		return &ast.For{Var: v.Get("var").String(), Iter: iter, Body: body}, nil

	case "While":
		cond, err := decodeExpr(v.Get("cond"))
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(v.Get("body"))
		if err != nil {
			return nil, err
		}
		return &ast.While{Cond: cond, Body: body}, nil

	case "Try":
		body, err := decodeBlock(v.Get("body"))
		if err != nil {
			return nil, err
		}
		var handlers []ast.Except
		var hErr error
		v.Get("handlers").ForEach(func(_, h gjson.Result) bool {
			excType, err := decodeOptExpr(h.Get("excType"))
			if err != nil {
				hErr = err
				return false
			}
			hb, err := decodeBlock(h.Get("body"))
			if err != nil {
				hErr = err
				return false
			}
			handlers = append(handlers, ast.Except{ExcType: excType, Bind: h.Get("bind").String(), Body: hb})
			return true
		})
		if hErr != nil {
			return nil, hErr
		}
		finally, err := decodeBlock(v.Get("finally"))
		if err != nil {
			return nil, err
		}
		return &ast.Try{Body: body, Handlers: handlers, Finally: finally}, nil

	case "With":
		cctx, err := decodeExpr(v.Get("ctx"))
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(v.Get("body"))
		if err != nil {
			return nil, err
		}
		return &ast.With{Ctx: cctx, Var: v.Get("var").String(), Body: body}, nil

	case "FunctionDefinition", "FunctionDef":
		args, err := decodeParams(v.Get("args"))
		if err != nil {
			return nil, err
		}
		rt, err := decodeOptExpr(v.Get("returnType"))
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(v.Get("body"))
		if err != nil {
			return nil, err
		}
		return &ast.FunctionDefinition{
			Name:       v.Get("name").String(),
			Args:       args,
			Varargs:    v.Get("varargs").String(),
			Varkwargs:  v.Get("varkwargs").String(),
			ReturnType: rt,
			Body:       body,
		}, nil

	case "ClassDefinition", "ClassDef":
		body, err := decodeBlock(v.Get("body"))
		if err != nil {
			return nil, err
		}
		return &ast.ClassDefinition{Name: v.Get("name").String(), Parent: v.Get("parent").String(), Body: body}, nil

	default:
		return nil, fmt.Errorf("unknown statement node type %q", t)
	}
}

func decodeExpr(v gjson.Result) (ast.Expression, error) {
	switch t := nodeType(v); t {
	case "VariableLookup":
		return &ast.VariableLookup{Name: v.Get("name").String()}, nil

	case "AttributeLookup":
		base, err := decodeExpr(v.Get("base"))
		if err != nil {
			return nil, err
		}
		return &ast.AttributeLookup{Base: base, Attr: v.Get("attr").String()}, nil

	case "ArrayIndex":
		container, err := decodeExpr(v.Get("container"))
		if err != nil {
			return nil, err
		}
		idx, err := decodeExpr(v.Get("index"))
		if err != nil {
			return nil, err
		}
		return &ast.ArrayIndex{Container: container, Index: idx}, nil

	case "ArraySlice":
		container, err := decodeExpr(v.Get("container"))
		if err != nil {
			return nil, err
		}
		low, err := decodeOptExpr(v.Get("low"))
		if err != nil {
			return nil, err
		}
		high, err := decodeOptExpr(v.Get("high"))
		if err != nil {
			return nil, err
		}
		return &ast.ArraySlice{Container: container, Low: low, High: high}, nil

	case "Unary":
		operand, err := decodeExpr(v.Get("operand"))
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: v.Get("op").String(), Operand: operand}, nil

	case "Binary":
		left, err := decodeExpr(v.Get("left"))
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(v.Get("right"))
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Op: v.Get("op").String(), Left: left, Right: right}, nil

	case "Ternary":
		cond, err := decodeExpr(v.Get("cond"))
		if err != nil {
			return nil, err
		}
		then, err := decodeExpr(v.Get("then"))
		if err != nil {
			return nil, err
		}
		els, err := decodeExpr(v.Get("else"))
		if err != nil {
			return nil, err
		}
		return &ast.Ternary{Cond: cond, Then: then, Else: els}, nil

	case "ListLit":
		items, err := decodeExprList(v.Get("items"))
		if err != nil {
			return nil, err
		}
		return &ast.ListLit{Items: items}, nil

	case "SetLit":
		items, err := decodeExprList(v.Get("items"))
		if err != nil {
			return nil, err
		}
		return &ast.SetLit{Items: items}, nil

	case "TupleLit":
		items, err := decodeExprList(v.Get("items"))
		if err != nil {
			return nil, err
		}
		return &ast.TupleLit{Items: items}, nil

	case "TupleTarget":
		var targets []ast.LValue
		var firstErr error
		v.Get("targets").ForEach(func(_, item gjson.Result) bool {
			lv, err := decodeLValue(item)
			if err != nil {
				firstErr = err
				return false
			}
			targets = append(targets, lv)
			return true
		})
		if firstErr != nil {
			return nil, firstErr
		}
		return &ast.TupleTarget{Targets: targets}, nil

	case "DictLit":
		var entries []ast.DictEntry
		var firstErr error
		v.Get("entries").ForEach(func(_, e gjson.Result) bool {
			k, err := decodeExpr(e.Get("key"))
			if err != nil {
				firstErr = err
				return false
			}
			val, err := decodeExpr(e.Get("value"))
			if err != nil {
				firstErr = err
				return false
			}
			entries = append(entries, ast.DictEntry{Key: k, Value: val})
			return true
		})
		if firstErr != nil {
			return nil, firstErr
		}
		return &ast.DictLit{Entries: entries}, nil

	case "Comprehension":
		element, err := decodeExpr(v.Get("element"))
		if err != nil {
			return nil, err
		}
		kind := v.Get("kind").String()
		var key ast.Expression
		if kind == "dict" {
			key, err = decodeExpr(v.Get("key"))
			if err != nil {
				return nil, err
			}
		}
		iter, err := decodeExpr(v.Get("iter"))
		if err != nil {
			return nil, err
		}
		ifs, err := decodeExprList(v.Get("ifs"))
		if err != nil {
			return nil, err
		}
		return &ast.Comprehension{Kind: kind, Element: element, Key: key, For: v.Get("for").String(), Iter: iter, Ifs: ifs}, nil

	case "LambdaDefinition", "Lambda":
		args, err := decodeParams(v.Get("args"))
		if err != nil {
			return nil, err
		}
		body, err := decodeExpr(v.Get("body"))
		if err != nil {
			return nil, err
		}
		return &ast.LambdaDefinition{Args: args, Varargs: v.Get("varargs").String(), Varkwargs: v.Get("varkwargs").String(), Body: body}, nil

	case "FunctionCall":
		callee, err := decodeExpr(v.Get("callee"))
		if err != nil {
			return nil, err
		}
		var args []ast.Arg
		var firstErr error
		v.Get("args").ForEach(func(_, a gjson.Result) bool {
			val, err := decodeExpr(a.Get("value"))
			if err != nil {
				firstErr = err
				return false
			}
			args = append(args, ast.Arg{Value: val})
			return true
		})
		if firstErr != nil {
			return nil, firstErr
		}
		return &ast.FunctionCall{Callee: callee, Args: args, SplitID: -1}, nil

	case "Int":
		return &ast.Int{Value: v.Get("value").Int()}, nil

	case "Float":
		return &ast.Float{Value: v.Get("value").Float()}, nil

	case "Bytes":
		raw, err := base64.StdEncoding.DecodeString(v.Get("value").String())
		if err != nil {
			return nil, fmt.Errorf("decoding base64 Bytes literal: %w", err)
		}
		return &ast.Bytes{Value: raw}, nil

	case "Unicode":
		return &ast.Unicode{Value: v.Get("value").String()}, nil

	case "True":
		return &ast.True{}, nil
	case "False":
		return &ast.False{}, nil
	case "NoneLiteral", "None":
		return &ast.NoneLiteral{}, nil

	case "Yield":
		val, err := decodeOptExpr(v.Get("value"))
		if err != nil {
			return nil, err
		}
		return &ast.Yield{Value: val}, nil

	default:
		return nil, fmt.Errorf("unknown expression node type %q", t)
	}
}
