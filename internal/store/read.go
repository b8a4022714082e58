package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/hwir/internal/ir"
)

// ReadRun retrieves a single run by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, runID string) (ir.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, namespace, passes, status, tool_version, ir_version
		FROM runs
		WHERE run_id = ?
	`, runID)
	return scanRun(row)
}

// ListRuns returns every run in the order it was begun.
func (s *Store) ListRuns(ctx context.Context) ([]ir.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, namespace, passes, status, tool_version, ir_version
		FROM runs
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadPassRuns returns the pass executions of a run ordered by seq ASC, id ASC.
// Returns an empty slice (not nil) if the run recorded none.
func (s *Store) ReadPassRuns(ctx context.Context, runID string) ([]ir.PassRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, pass_id, kind, namespace, analysis, changed
		FROM pass_runs
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query pass runs: %w", err)
	}
	defer rows.Close()

	recs := []ir.PassRecord{}
	for rows.Next() {
		var rec ir.PassRecord
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.PassID, &rec.Kind, &rec.Namespace, &rec.Analysis, &rec.Changed); err != nil {
			return nil, fmt.Errorf("scan pass run: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pass runs: %w", err)
	}
	return recs, nil
}

// ReadElaborations returns the elaborations of a run ordered by seq ASC, id ASC.
func (s *Store) ReadElaborations(ctx context.Context, runID string) ([]ir.ElaborationRecord, error) {
	return s.queryElaborations(ctx, `
		SELECT run_id, seq, generator, args_hash, args, module
		FROM elaborations
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
}

// FindElaborations returns every recorded elaboration of a generator across
// all runs, oldest first.
func (s *Store) FindElaborations(ctx context.Context, generator string) ([]ir.ElaborationRecord, error) {
	return s.queryElaborations(ctx, `
		SELECT run_id, seq, generator, args_hash, args, module
		FROM elaborations
		WHERE generator = ?
		ORDER BY id ASC
	`, generator)
}

func (s *Store) queryElaborations(ctx context.Context, query string, arg string) ([]ir.ElaborationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query elaborations: %w", err)
	}
	defer rows.Close()

	recs := []ir.ElaborationRecord{}
	for rows.Next() {
		var rec ir.ElaborationRecord
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Generator, &rec.ArgsHash, &rec.Args, &rec.Module); err != nil {
			return nil, fmt.Errorf("scan elaboration: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate elaborations: %w", err)
	}
	return recs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (ir.RunRecord, error) {
	var run ir.RunRecord
	var passes string
	if err := row.Scan(&run.RunID, &run.Namespace, &passes, &run.Status, &run.ToolVersion, &run.IRVersion); err != nil {
		if err == sql.ErrNoRows {
			return ir.RunRecord{}, err
		}
		return ir.RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(passes), &run.Passes); err != nil {
		return ir.RunRecord{}, fmt.Errorf("unmarshal passes of run %s: %w", run.RunID, err)
	}
	return run, nil
}
