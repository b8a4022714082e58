package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Design is a CUE module directory. Relative paths are resolved against
	// the scenario file location.
	Design string `yaml:"design,omitempty"`

	// Source is an inline CUE design, used instead of Design.
	Source string `yaml:"source,omitempty"`

	// Namespace is the namespace the passes run over. Defaults to "global".
	Namespace string `yaml:"namespace,omitempty"`

	// Passes are run in order.
	Passes []string `yaml:"passes"`

	// Print lists passes whose printed results are captured.
	Print []string `yaml:"print,omitempty"`

	// IsolationCheck enables the module-pass isolation checker.
	IsolationCheck bool `yaml:"isolation_check,omitempty"`

	// ExpectError is the error code the run must fail with. Empty means the
	// run must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the IR and the trace after the run.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Module is a module reference "ns.name" (module_exists, instance_target).
	Module string `yaml:"module,omitempty"`

	// Instance is "ns.Module.inst" (instance_target).
	Instance string `yaml:"instance,omitempty"`

	// Generator is a generator reference "ns.name" (elaboration_count).
	Generator string `yaml:"generator,omitempty"`

	// Count is the expected number of elaborations (elaboration_count).
	Count int `yaml:"count,omitempty"`

	// Passes is the expected execution order (pass_order).
	Passes []string `yaml:"passes,omitempty"`

	// Pass and Text select a printed result and a substring (print_contains).
	Pass string `yaml:"pass,omitempty"`
	Text string `yaml:"text,omitempty"`

	// Code is a diagnostic code (diagnostic).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertModuleExists     = "module_exists"
	AssertInstanceTarget   = "instance_target"
	AssertElaborationCount = "elaboration_count"
	AssertNoGenerators     = "no_generator_instances"
	AssertPassOrder        = "pass_order"
	AssertPrintContains    = "print_contains"
	AssertDiagnostic       = "diagnostic"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Design != "" && !filepath.IsAbs(scenario.Design) {
		scenario.Design = filepath.Join(filepath.Dir(path), scenario.Design)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Namespace == "" {
		scenario.Namespace = "global"
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Design == "") == (s.Source == "") {
		return fmt.Errorf("exactly one of design or source is required")
	}
	if len(s.Passes) == 0 {
		return fmt.Errorf("passes list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertModuleExists:
		if a.Module == "" {
			return fmt.Errorf("module_exists requires 'module' field")
		}
	case AssertInstanceTarget:
		if a.Instance == "" || a.Module == "" {
			return fmt.Errorf("instance_target requires 'instance' and 'module' fields")
		}
	case AssertElaborationCount:
		if a.Generator == "" {
			return fmt.Errorf("elaboration_count requires 'generator' field")
		}
		if a.Count < 0 {
			return fmt.Errorf("elaboration_count requires a non-negative 'count'")
		}
	case AssertNoGenerators:
	case AssertPassOrder:
		if len(a.Passes) == 0 {
			return fmt.Errorf("pass_order requires non-empty 'passes' field")
		}
	case AssertPrintContains:
		if a.Pass == "" || a.Text == "" {
			return fmt.Errorf("print_contains requires 'pass' and 'text' fields")
		}
	case AssertDiagnostic:
		if a.Code == "" {
			return fmt.Errorf("diagnostic requires 'code' field")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
