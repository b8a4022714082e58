package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/hwir/internal/diag"
	"github.com/roach88/hwir/internal/ir"
)

// AssertionContext is the IR an assertion is evaluated against.
type AssertionContext struct {
	IR        *ir.Context
	Namespace *ir.Namespace
}

// AssertionError describes a failed assertion.
type AssertionError struct {
	Index   int
	Type    string
	Message string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %d (%s): %s", e.Index, e.Type, e.Message)
}

// EvaluateAssertions checks every assertion and returns one message per
// failure. The result is empty when all assertions hold.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			failures = append(failures, (&AssertionError{Index: i, Type: a.Type, Message: err.Error()}).Error())
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertModuleExists:
		return assertModuleExists(actx, a.Module)
	case AssertInstanceTarget:
		return assertInstanceTarget(actx, a.Instance, a.Module)
	case AssertElaborationCount:
		return assertElaborationCount(result, a.Generator, a.Count)
	case AssertNoGenerators:
		return assertNoGenerators(actx)
	case AssertPassOrder:
		return assertPassOrder(result, a.Passes)
	case AssertPrintContains:
		return assertPrintContains(result, a.Pass, a.Text)
	case AssertDiagnostic:
		return assertDiagnostic(result, a.Code)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertModuleExists(actx *AssertionContext, ref string) error {
	inst, err := actx.IR.Resolve(ref)
	if err != nil {
		return fmt.Errorf("module %s not found: %w", ref, err)
	}
	if _, ok := inst.(*ir.Module); !ok {
		return fmt.Errorf("%s is a generator, not a module", ref)
	}
	return nil
}

// assertInstanceTarget checks that instance "ns.Module.inst" targets module.
func assertInstanceTarget(actx *AssertionContext, instRef, module string) error {
	i := strings.LastIndex(instRef, ".")
	if i <= 0 {
		return fmt.Errorf("instance reference %q must be ns.Module.inst", instRef)
	}
	ownerRef, name := instRef[:i], instRef[i+1:]

	owner, err := actx.IR.Resolve(ownerRef)
	if err != nil {
		return fmt.Errorf("owner %s not found: %w", ownerRef, err)
	}
	m, ok := owner.(*ir.Module)
	if !ok || !m.HasDefinition() {
		return fmt.Errorf("owner %s is not a defined module", ownerRef)
	}
	for _, inst := range m.Definition().Instances() {
		if inst.Name() != name {
			continue
		}
		if got := inst.Target().RefName(); got != module {
			return fmt.Errorf("instance %s targets %s, want %s", instRef, got, module)
		}
		return nil
	}
	return fmt.Errorf("instance %s not found", instRef)
}

func assertElaborationCount(result *Result, generator string, want int) error {
	got := 0
	for _, e := range result.Elaborations() {
		if e.Generator == generator {
			got++
		}
	}
	if got != want {
		return fmt.Errorf("generator %s elaborated %d times, want %d", generator, got, want)
	}
	return nil
}

// assertNoGenerators checks that no defined module of the namespace still
// instantiates a generator.
func assertNoGenerators(actx *AssertionContext) error {
	var offenders []string
	for _, m := range actx.Namespace.Modules() {
		if !m.HasDefinition() {
			continue
		}
		for _, inst := range m.Definition().Instances() {
			if _, ok := inst.Target().(*ir.Generator); ok {
				offenders = append(offenders, m.RefName()+"."+inst.Name())
			}
		}
	}
	if len(offenders) > 0 {
		return fmt.Errorf("generator instances remain: %s", strings.Join(offenders, ", "))
	}
	return nil
}

// assertPassOrder checks that want appears in the executed list in order,
// allowing dependencies to run in between.
func assertPassOrder(result *Result, want []string) error {
	next := 0
	for _, id := range result.Executed {
		if next < len(want) && id == want[next] {
			next++
		}
	}
	if next != len(want) {
		return fmt.Errorf("executed %v does not contain %v in order", result.Executed, want)
	}
	return nil
}

func assertPrintContains(result *Result, passID, text string) error {
	out, ok := result.Printed[passID]
	if !ok {
		return fmt.Errorf("pass %s was not printed", passID)
	}
	if !strings.Contains(out, text) {
		return fmt.Errorf("printed %s does not contain %q", passID, text)
	}
	return nil
}

func assertDiagnostic(result *Result, code string) error {
	if slices.ContainsFunc(result.Diagnostics, func(d diag.Diagnostic) bool { return d.Code == code }) {
		return nil
	}
	codes := make([]string, 0, len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		codes = append(codes, d.Code)
	}
	return fmt.Errorf("no diagnostic with code %s (got %v)", code, codes)
}
