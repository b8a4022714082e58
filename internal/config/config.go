// Package config reads hwir pipeline files.
//
// A pipeline names a design, the namespace to run over and the passes to run
// in order:
//
//	design: ./design
//	namespace: global
//	top: global.Top
//	passes: [rungenerators, createinstancemap]
//	print: [createinstancemap]
//	isolation_check: true
//	journal: hwir.db
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultNamespace is used when a pipeline names none.
const DefaultNamespace = "global"

// Pipeline is one driver invocation described in YAML.
type Pipeline struct {
	// Design is the CUE design directory. Relative paths are resolved against
	// the pipeline file's directory.
	Design string `yaml:"design"`

	// Namespace is the namespace the pass manager runs over.
	Namespace string `yaml:"namespace,omitempty"`

	// Top overrides the design's top module ("ns.name").
	Top string `yaml:"top,omitempty"`

	// Passes are run in order.
	Passes []string `yaml:"passes"`

	// Print lists passes whose results are printed after the run.
	Print []string `yaml:"print,omitempty"`

	// IsolationCheck enables the module-pass isolation checker.
	IsolationCheck bool `yaml:"isolation_check,omitempty"`

	// Journal is an optional SQLite path for the run journal.
	Journal string `yaml:"journal,omitempty"`
}

// Load reads and parses a pipeline file, resolving relative paths against its
// directory. Unknown fields are rejected.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	p.resolvePaths(filepath.Dir(path))
	return p, nil
}

// Parse decodes a pipeline, applies defaults and validates it.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	return &p, nil
}

func (p *Pipeline) applyDefaults() {
	if p.Namespace == "" {
		p.Namespace = DefaultNamespace
	}
}

func (p *Pipeline) resolvePaths(base string) {
	if p.Design != "" && !filepath.IsAbs(p.Design) {
		p.Design = filepath.Join(base, p.Design)
	}
	if p.Journal != "" && p.Journal != ":memory:" && !filepath.IsAbs(p.Journal) {
		p.Journal = filepath.Join(base, p.Journal)
	}
}

// Validate checks required fields. Pass ids are checked against the registry
// by the driver, not here.
func (p *Pipeline) Validate() error {
	if p.Design == "" {
		return fmt.Errorf("design is required")
	}
	if strings.Contains(p.Namespace, ".") {
		return fmt.Errorf("namespace %q must not contain '.'", p.Namespace)
	}
	if p.Top != "" && strings.Count(p.Top, ".") != 1 {
		return fmt.Errorf("top %q must be a reference of the form ns.name", p.Top)
	}
	if len(p.Passes) == 0 {
		return fmt.Errorf("passes list is required and must be non-empty")
	}
	for i, id := range p.Passes {
		if id == "" {
			return fmt.Errorf("passes[%d] is empty", i)
		}
	}
	for i, id := range p.Print {
		if id == "" {
			return fmt.Errorf("print[%d] is empty", i)
		}
	}
	return nil
}
