package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/hwir/internal/corelib"
	"github.com/roach88/hwir/internal/diag"
	"github.com/roach88/hwir/internal/ir"
	"github.com/roach88/hwir/internal/loader"
	"github.com/roach88/hwir/internal/pass"
	"github.com/roach88/hwir/internal/passes"
	"github.com/roach88/hwir/internal/store"
)

// ScenarioRunID is the run id every scenario runs under.
const ScenarioRunID = "scenario"

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh IR context and a fresh in-memory
// journal. The returned error is reserved for failures to set the run up
// (unreadable design, unknown namespace); a failing run is reported in the
// result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	c := ir.NewContext()
	if _, err := corelib.Load(c); err != nil {
		return nil, fmt.Errorf("failed to load core library: %w", err)
	}
	if scenario.Design != "" {
		_, err = loader.LoadDir(c, scenario.Design)
	} else {
		_, err = loader.LoadString(c, scenario.Name+".cue", scenario.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load design: %w", err)
	}
	ns, err := c.Namespace(scenario.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to select namespace: %w", err)
	}

	pm := pass.NewManager(ns,
		pass.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in scenarios
		pass.WithJournal(st),
		pass.WithRunIDGenerator(pass.NewFixedGenerator(ScenarioRunID)),
		pass.WithClock(pass.NewClock()),
		pass.WithIsolationCheck(scenario.IsolationCheck),
	)
	if err := passes.RegisterBuiltins(pm); err != nil {
		return nil, err
	}

	ctx := context.Background()
	res, runErr := pm.Run(ctx, scenario.Passes...)

	result := NewResult()
	result.RunID = res.RunID
	result.Executed = res.Executed
	result.Changed = res.Changed
	result.Diagnostics = res.Diagnostics.Items()
	result.RunErr = runErr

	result.Trace, err = readTrace(ctx, st, res.RunID)
	if err != nil {
		return nil, err
	}

	checkExpectedError(result, scenario.ExpectError)

	if runErr == nil {
		for _, id := range scenario.Print {
			var buf bytes.Buffer
			if err := pm.PrintResult(&buf, id); err != nil {
				result.AddError(fmt.Sprintf("print %s: %v", id, err))
				continue
			}
			result.Printed[id] = buf.String()
		}
	}

	actx := &AssertionContext{IR: c, Namespace: ns}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func checkExpectedError(result *Result, want string) {
	switch {
	case result.RunErr == nil && want != "":
		result.AddError(fmt.Sprintf("expected run to fail with %s, but it succeeded", want))
	case result.RunErr != nil && want == "":
		result.AddError(fmt.Sprintf("run failed: %v", result.RunErr))
	case result.RunErr != nil:
		if got := diag.FromError(result.RunErr).Code; got != want {
			result.AddError(fmt.Sprintf("expected run to fail with %s, got %s: %v", want, got, result.RunErr))
		}
	}
}

// readTrace merges the pass runs and elaborations of a run by seq.
func readTrace(ctx context.Context, st *store.Store, runID string) ([]TraceEvent, error) {
	passRuns, err := st.ReadPassRuns(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read pass runs: %w", err)
	}
	elabs, err := st.ReadElaborations(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read elaborations: %w", err)
	}

	trace := make([]TraceEvent, 0, len(passRuns)+len(elabs))
	pi, ei := 0, 0
	for pi < len(passRuns) || ei < len(elabs) {
		if ei >= len(elabs) || (pi < len(passRuns) && passRuns[pi].Seq < elabs[ei].Seq) {
			pr := passRuns[pi]
			trace = append(trace, TraceEvent{Type: EventPass, Seq: pr.Seq, Pass: pr.PassID, Kind: pr.Kind, Changed: pr.Changed})
			pi++
			continue
		}
		el := elabs[ei]
		trace = append(trace, TraceEvent{Type: EventElaboration, Seq: el.Seq, Generator: el.Generator, Args: el.Args, Module: el.Module})
		ei++
	}
	return trace, nil
}
