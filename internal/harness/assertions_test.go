package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwir/internal/corelib"
	"github.com/roach88/hwir/internal/diag"
	"github.com/roach88/hwir/internal/ir"
	"github.com/roach88/hwir/internal/loader"
)

// unelaborated loads sumSource without running any pass.
func unelaborated(t *testing.T) *AssertionContext {
	t.Helper()
	c := ir.NewContext()
	_, err := corelib.Load(c)
	require.NoError(t, err)
	_, err = loader.LoadString(c, "sum.cue", sumSource)
	require.NoError(t, err)
	return &AssertionContext{IR: c, Namespace: c.Global()}
}

func TestEvaluateAssertions_AllHold(t *testing.T) {
	actx := unelaborated(t)
	result := NewResult()
	result.Executed = []string{"rungenerators", "constructInstanceGraph", "printinstancegraph"}
	result.Printed["printinstancegraph"] = "global.Top : module\n"
	result.Trace = []TraceEvent{
		{Type: EventElaboration, Seq: 1, Generator: "core.add", Args: "(width:8)", Module: "core.add__width8"},
		{Type: EventPass, Seq: 2, Pass: "rungenerators"},
	}
	result.Diagnostics = []diag.Diagnostic{{Severity: diag.SevWarning, Code: "UNUSED"}}

	failures := EvaluateAssertions(result, []Assertion{
		{Type: AssertModuleExists, Module: "global.Top"},
		{Type: AssertInstanceTarget, Instance: "global.Top.sum", Module: "core.addtree"},
		{Type: AssertElaborationCount, Generator: "core.add", Count: 1},
		{Type: AssertElaborationCount, Generator: "core.wire", Count: 0},
		{Type: AssertPassOrder, Passes: []string{"rungenerators", "printinstancegraph"}},
		{Type: AssertPrintContains, Pass: "printinstancegraph", Text: "global.Top"},
		{Type: AssertDiagnostic, Code: "UNUSED"},
	}, actx)
	assert.Empty(t, failures)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	actx := unelaborated(t)
	result := NewResult()
	result.Executed = []string{"createinstancemap", "rungenerators"}
	result.Printed["createinstancemap"] = "global.Top\n"

	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"missing module", Assertion{Type: AssertModuleExists, Module: "global.Nope"}, "module global.Nope not found"},
		{"generator is not a module", Assertion{Type: AssertModuleExists, Module: "core.addtree"}, "is a generator"},
		{"wrong target", Assertion{Type: AssertInstanceTarget, Instance: "global.Top.sum", Module: "core.add"}, "targets core.addtree, want core.add"},
		{"unknown instance", Assertion{Type: AssertInstanceTarget, Instance: "global.Top.ghost", Module: "core.add"}, "instance global.Top.ghost not found"},
		{"bad instance ref", Assertion{Type: AssertInstanceTarget, Instance: "Top", Module: "core.add"}, "must be ns.Module.inst"},
		{"owner is a generator", Assertion{Type: AssertInstanceTarget, Instance: "core.add.x", Module: "core.add"}, "not a defined module"},
		{"count mismatch", Assertion{Type: AssertElaborationCount, Generator: "core.add", Count: 2}, "elaborated 0 times, want 2"},
		{"generators remain", Assertion{Type: AssertNoGenerators}, "generator instances remain: global.Top.sum"},
		{"pass order", Assertion{Type: AssertPassOrder, Passes: []string{"rungenerators", "createinstancemap"}}, "does not contain"},
		{"not printed", Assertion{Type: AssertPrintContains, Pass: "printinstancegraph", Text: "x"}, "was not printed"},
		{"text missing", Assertion{Type: AssertPrintContains, Pass: "createinstancemap", Text: "core.add"}, `does not contain "core.add"`},
		{"no diagnostic", Assertion{Type: AssertDiagnostic, Code: "INSTANCE_CYCLE"}, "no diagnostic with code INSTANCE_CYCLE"},
		{"unknown type", Assertion{Type: "final_state"}, "unknown assertion type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := EvaluateAssertions(result, []Assertion{tt.assertion}, actx)
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0], "assertion 0 ("+tt.assertion.Type+")")
			assert.Contains(t, failures[0], tt.want)
		})
	}
}
