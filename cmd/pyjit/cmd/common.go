package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bencz/python-jit/internal/astio"
	"github.com/bencz/python-jit/internal/config"
	"github.com/bencz/python-jit/internal/ctx"
	"github.com/bencz/python-jit/internal/emitter"
	"github.com/bencz/python-jit/pkg/pyjit"
)

// patchFlags accumulates repeated --patch path=value flags, one
// astio.Patch call per flag, applied in order before decoding.
var patchFlags []string

// moduleNameFromPath derives a module name from a fixture path: strip
// the directory and extension.
func moduleNameFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return base
}

// loadASTDocument reads path, applies any --patch mutations in order, and
// returns the resulting raw document; callers decode it with astio.Decode.
func loadASTDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	for _, p := range patchFlags {
		parts := strings.SplitN(p, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --patch %q, want path=value", p)
		}
		data, err = astio.Patch(data, parts[0], parseScalar(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("applying --patch %q: %w", p, err)
		}
	}
	return data, nil
}

// parseScalar interprets a --patch value as a JSON-ish scalar: integers
// and floats decode numerically, "true"/"false" as bool, anything else as
// a raw string. astio.Patch's underlying sjson.SetBytes otherwise always
// treats the replacement as a Go string, which would turn `--patch
// body.0.value.value=7` into the JSON string "7" instead of the JSON
// number the fixture's decoder expects for an Int node.
func parseScalar(s string) any {
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if i, err := parseInt(s); err == nil {
		return i
	}
	if f, err := parseFloat(s); err == nil {
		return f
	}
	return s
}

func parseInt(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0, err
	}
	// Sscanf silently accepts a prefix match ("7abc" -> 7); reject that.
	if fmt.Sprintf("%d", v) != s {
		return 0, fmt.Errorf("not a plain integer")
	}
	return v, nil
}

func parseFloat(s string) (float64, error) {
	var v float64
	n, err := fmt.Sscanf(s, "%g", &v)
	if err != nil || n != 1 {
		return 0, fmt.Errorf("not a float")
	}
	return v, nil
}

// importPathsFromManifest loads a manifest, if manifestPath is non-empty,
// and returns its ImportPaths; otherwise returns explicit paths as given.
func importPathsFromManifest(manifestPath string, explicit []string) ([]string, error) {
	if manifestPath == "" {
		return explicit, nil
	}
	m, err := config.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	return m.ImportPaths, nil
}

// newEngine builds a pyjit.Engine with the given import paths and a trace
// writer, so the caller can choose whether to print the trace.
func newEngine(importPaths []string) (*pyjit.Engine, *strings.Builder) {
	var trace strings.Builder
	eng := pyjit.New(
		pyjit.WithImportPaths(importPaths...),
		pyjit.WithTrace(&trace),
	)
	return eng, &trace
}

// disassembleFragment prints frag's compiled instruction stream to
// stdout, shared by the `compile --disassemble` and `disasm` commands.
func disassembleFragment(frag *ctx.Fragment) error {
	return emitter.Disassemble(os.Stdout, frag.Compiled, frag.CompiledLabels)
}
