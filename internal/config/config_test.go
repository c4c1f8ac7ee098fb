package config

import "testing"

func TestParseValidManifest(t *testing.T) {
	doc := []byte(`
entry: main
import_paths:
  - ./lib
  - ./vendor
shared_static_init: true
`)
	m, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Entry != "main" {
		t.Errorf("Entry = %q, want %q", m.Entry, "main")
	}
	if len(m.ImportPaths) != 2 || m.ImportPaths[0] != "./lib" || m.ImportPaths[1] != "./vendor" {
		t.Errorf("ImportPaths = %v", m.ImportPaths)
	}
	if !m.SharedStaticInit {
		t.Error("expected SharedStaticInit to be true")
	}
	if m.RunID == "" {
		t.Error("expected a non-empty RunID")
	}
}

func TestParseRejectsMissingEntry(t *testing.T) {
	doc := []byte(`
import_paths:
  - ./lib
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected an error for a manifest with no entry module")
	}
}

func TestParseRejectsEmptyImportPaths(t *testing.T) {
	doc := []byte(`entry: main`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected an error for a manifest with no import paths")
	}
}

func TestParseStampsDistinctRunIDs(t *testing.T) {
	doc := []byte("entry: main\nimport_paths: [./lib]\n")
	a, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.RunID == b.RunID {
		t.Error("expected two loads of the same manifest to get distinct correlation ids")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/pyjit.yaml"); err == nil {
		t.Fatal("expected an error loading a manifest from a nonexistent path")
	}
}
