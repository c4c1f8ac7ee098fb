package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

const simpleFixture = `{
	"type": "Module",
	"body": [
		{
			"type": "Assignment",
			"target": {"type": "VariableLookup", "name": "x"},
			"value": {"type": "Int", "value": 7}
		}
	]
}`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "program.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func resetFlags() {
	patchFlags = nil
	runImportPaths = nil
	runManifest = ""
	runShowTrace = false
	compileImportPaths = nil
	compileManifest = ""
	compileStats = false
	compileDisassemble = false
}

func TestRunFixtureAdvancesToImported(t *testing.T) {
	resetFlags()
	path := writeFixture(t, simpleFixture)

	if err := runFixture(nil, []string{path}); err != nil {
		t.Fatalf("runFixture: %v", err)
	}
}

func TestRunFixtureRejectsMissingFile(t *testing.T) {
	resetFlags()
	if err := runFixture(nil, []string{"/no/such/fixture.json"}); err == nil {
		t.Fatal("expected an error reading a nonexistent fixture")
	}
}

func TestRunFixtureAppliesPatchFlag(t *testing.T) {
	resetFlags()
	path := writeFixture(t, simpleFixture)
	patchFlags = []string{"body.0.value.value=9"}

	if err := runFixture(nil, []string{path}); err != nil {
		t.Fatalf("runFixture with --patch: %v", err)
	}
}

func TestCompileFixtureReportsStats(t *testing.T) {
	resetFlags()
	path := writeFixture(t, simpleFixture)
	compileStats = true

	if err := compileFixture(nil, []string{path}); err != nil {
		t.Fatalf("compileFixture: %v", err)
	}
}

func TestModuleNameFromPath(t *testing.T) {
	if got := moduleNameFromPath("/a/b/program.json"); got != "program" {
		t.Errorf("moduleNameFromPath = %q, want %q", got, "program")
	}
}

func TestParseScalar(t *testing.T) {
	cases := map[string]any{
		"true":  true,
		"false": false,
		"7":     int64(7),
		"3.5":   float64(3.5),
		"hello": "hello",
	}
	for in, want := range cases {
		if got := parseScalar(in); got != want {
			t.Errorf("parseScalar(%q) = %#v, want %#v", in, got, want)
		}
	}
}
