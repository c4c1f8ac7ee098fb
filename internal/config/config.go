// Package config loads the project manifest that tells the driver which
// module to treat as the program entry point and where to look for
// imports. A manifest is the one piece of configuration this pipeline
// needs; there is no broader settings surface (timeouts, feature flags,
// …) for it to own.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
)

// Manifest describes one compilable project: its entry module, the search
// path the phase driver consults when resolving `import`, and whether
// modules share one static-initializer pass or each get their own.
type Manifest struct {
	// Entry names the project's entry module. validate requires it; no
	// other code reads it.
	Entry string `yaml:"entry"`

	// ImportPaths is searched, in order, for a module's source when the
	// phase driver has to resolve an `import` it hasn't seen yet.
	ImportPaths []string `yaml:"import_paths"`

	// SharedStaticInit is parsed from shared_static_init. No part of the
	// pipeline reads it: the phase driver always materializes each
	// module's static-initializer slots on their own, when that module
	// reaches Analyzed.
	SharedStaticInit bool `yaml:"shared_static_init"`

	// RunID stamps this manifest parse with a correlation id. It is
	// assigned by Parse (and so by Load), never read from the document,
	// and no diagnostic or log line includes it.
	RunID string `yaml:"-"`
}

// Load reads and validates a manifest from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a manifest from raw YAML, stamping a fresh correlation id.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: parsing manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.RunID = uuid.NewString()
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Entry == "" {
		return fmt.Errorf("config: manifest has no entry module")
	}
	if len(m.ImportPaths) == 0 {
		return fmt.Errorf("config: manifest for %q has no import paths", m.Entry)
	}
	return nil
}
