package pass

import (
	"context"
	"log/slog"

	"github.com/roach88/hwir/internal/diag"
	"github.com/roach88/hwir/internal/ir"
)

// Journal records what a run did. Implemented by store.Store; a nil Journal
// disables recording.
type Journal interface {
	BeginRun(ctx context.Context, run ir.RunRecord) error
	FinishRun(ctx context.Context, runID, status string) error
	RecordPassRun(ctx context.Context, rec ir.PassRecord) error
	RecordElaboration(ctx context.Context, rec ir.ElaborationRecord) error
}

// RunContext is handed to every pass invocation of one Manager.Run call.
// It replaces process-wide state: diagnostics, logging and journaling are
// all scoped to the run.
type RunContext struct {
	ctx     context.Context
	runID   string
	diags   *diag.Sink
	logger  *slog.Logger
	journal Journal
	clock   *Clock
	pass    string
}

// Context returns the context.Context of the run.
func (rc *RunContext) Context() context.Context { return rc.ctx }

// RunID returns the id of the run.
func (rc *RunContext) RunID() string { return rc.runID }

// Diagnostics returns the run's diagnostic sink.
func (rc *RunContext) Diagnostics() *diag.Sink { return rc.diags }

// Logger returns a logger annotated with the run id and current pass.
func (rc *RunContext) Logger() *slog.Logger {
	if rc.pass == "" {
		return rc.logger
	}
	return rc.logger.With("pass", rc.pass)
}

// Pass returns the id of the pass currently executing.
func (rc *RunContext) Pass() string { return rc.pass }

// Warn records a warning attributed to the current pass.
func (rc *RunContext) Warn(msg string, context ...string) {
	rc.diags.Warn(rc.pass, msg, context...)
}

// RecordElaboration journals that g was elaborated for args into m.
// Journal failures are logged, not fatal: the IR is already updated.
func (rc *RunContext) RecordElaboration(g *ir.Generator, args ir.Args, m *ir.Module) {
	if rc.journal == nil {
		return
	}
	hash, err := ir.ArgsHash(args)
	if err != nil {
		rc.Logger().Warn("elaboration not journaled", "generator", g.RefName(), "error", err)
		return
	}
	rec := ir.ElaborationRecord{
		RunID:     rc.runID,
		Seq:       rc.clock.Stamp(),
		Generator: g.RefName(),
		ArgsHash:  hash,
		Args:      args.String(),
		Module:    m.RefName(),
	}
	if err := rc.journal.RecordElaboration(rc.ctx, rec); err != nil {
		rc.Logger().Warn("elaboration not journaled", "generator", g.RefName(), "error", err)
	}
}
