package store

import (
	"context"
	"fmt"

	"github.com/roach88/hwir/internal/ir"
)

// BeginRun inserts a run record. The run id must be new.
func (s *Store) BeginRun(ctx context.Context, run ir.RunRecord) error {
	passes, err := ir.MarshalCanonical(run.Passes)
	if err != nil {
		return fmt.Errorf("begin run: marshal passes: %w", err)
	}
	status := run.Status
	if status == "" {
		status = "running"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, namespace, passes, status, tool_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.Namespace,
		string(passes),
		status,
		run.ToolVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun sets the final status of a running run.
func (s *Store) FinishRun(ctx context.Context, runID, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ? WHERE run_id = ? AND status = 'running'
	`, status, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: no running run %q", runID)
	}
	return nil
}

// RecordPassRun appends one pass execution.
// Uses ON CONFLICT DO NOTHING so re-recording the same (run, seq) is a no-op.
func (s *Store) RecordPassRun(ctx context.Context, rec ir.PassRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pass_runs (run_id, seq, pass_id, kind, namespace, analysis, changed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		rec.RunID,
		rec.Seq,
		rec.PassID,
		rec.Kind,
		rec.Namespace,
		rec.Analysis,
		rec.Changed,
	)
	if err != nil {
		return fmt.Errorf("record pass run: %w", err)
	}
	return nil
}

// RecordElaboration appends one generator elaboration.
func (s *Store) RecordElaboration(ctx context.Context, rec ir.ElaborationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO elaborations (run_id, seq, generator, args_hash, args, module)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		rec.RunID,
		rec.Seq,
		rec.Generator,
		rec.ArgsHash,
		rec.Args,
		rec.Module,
	)
	if err != nil {
		return fmt.Errorf("record elaboration: %w", err)
	}
	return nil
}
