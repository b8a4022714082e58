package harness

import (
	"github.com/roach88/hwir/internal/diag"
)

// TraceEvent is one journal record of a scenario run.
type TraceEvent struct {
	Type string `json:"type"` // "pass" or "elaboration"
	Seq  int64  `json:"seq"`

	// Pass events.
	Pass    string `json:"pass,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Changed bool   `json:"changed,omitempty"`

	// Elaboration events.
	Generator string `json:"generator,omitempty"`
	Args      string `json:"args,omitempty"`
	Module    string `json:"module,omitempty"`
}

// Trace event types.
const (
	EventPass        = "pass"
	EventElaboration = "elaboration"
)

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when the run matched expect_error and every assertion held.
	Pass bool

	// Errors holds one message per failed expectation.
	Errors []string

	RunID    string
	Executed []string
	Changed  bool

	// Trace is the journal of the run ordered by seq.
	Trace []TraceEvent

	// Printed maps pass id to its printed result.
	Printed map[string]string

	Diagnostics []diag.Diagnostic

	// RunErr is the error the pass manager returned, if any.
	RunErr error
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{Pass: true, Printed: map[string]string{}}
}

// AddError records a failed expectation.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Elaborations returns the elaboration events of the trace.
func (r *Result) Elaborations() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventElaboration {
			out = append(out, e)
		}
	}
	return out
}
