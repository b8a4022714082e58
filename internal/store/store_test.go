package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/roach88/hwir/internal/corelib"
	"github.com/roach88/hwir/internal/ir"
	"github.com/roach88/hwir/internal/pass"
	"github.com/roach88/hwir/internal/passes"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestRun(t *testing.T, s *Store, runID string) {
	t.Helper()
	err := s.BeginRun(context.Background(), ir.RunRecord{
		RunID:       runID,
		Namespace:   "global",
		Passes:      []string{"rungenerators", "createinstancemap"},
		ToolVersion: ir.ToolVersion,
		IRVersion:   ir.IRVersion,
	})
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"runs", "pass_runs", "elaborations"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
		{"synchronous", "1"}, // NORMAL
		{"user_version", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.expected); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	_, err = Open(path)
	if !errors.Is(err, errNewerSchema) {
		t.Fatalf("Open() error = %v, want errNewerSchema", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var s Store
	if err := s.Close(); err != nil {
		t.Errorf("Close() on empty store = %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	run, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.Status != "running" {
		t.Errorf("status = %q, want running", run.Status)
	}
	if !reflect.DeepEqual(run.Passes, []string{"rungenerators", "createinstancemap"}) {
		t.Errorf("passes = %v", run.Passes)
	}

	if err := s.FinishRun(ctx, "run-1", "ok"); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}
	run, err = s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.Status != "ok" {
		t.Errorf("status = %q, want ok", run.Status)
	}

	// A finished run cannot be finished again.
	if err := s.FinishRun(ctx, "run-1", "failed"); err == nil {
		t.Error("second FinishRun() should fail")
	}
}

func TestBeginRun_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	err := s.BeginRun(context.Background(), ir.RunRecord{RunID: "run-1", Namespace: "global"})
	if err == nil {
		t.Fatal("BeginRun() with a duplicate id should fail")
	}
}

func TestFinishRun_InvalidStatus(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	if err := s.FinishRun(context.Background(), "run-1", "bogus"); err == nil {
		t.Fatal("FinishRun() should reject a status outside the CHECK constraint")
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadRun() error = %v, want sql.ErrNoRows", err)
	}
}

func TestListRuns_InsertionOrder(t *testing.T) {
	s := createTestStore(t)
	for _, id := range []string{"zz", "aa", "mm"} {
		createTestRun(t, s, id)
	}

	runs, err := s.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.RunID)
	}
	if !reflect.DeepEqual(ids, []string{"zz", "aa", "mm"}) {
		t.Errorf("run order = %v", ids)
	}
}

func TestPassRuns_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	for _, rec := range []ir.PassRecord{
		{RunID: "run-1", Seq: 3, PassID: "createinstancemap", Kind: "module", Namespace: "global", Analysis: true},
		{RunID: "run-1", Seq: 1, PassID: "constructInstanceGraph", Kind: "namespace", Namespace: "global", Analysis: true},
		{RunID: "run-1", Seq: 2, PassID: "rungenerators", Kind: "namespace", Namespace: "global", Changed: true},
	} {
		if err := s.RecordPassRun(ctx, rec); err != nil {
			t.Fatalf("RecordPassRun() failed: %v", err)
		}
	}

	recs, err := s.ReadPassRuns(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadPassRuns() failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d pass runs, want 3", len(recs))
	}
	want := []string{"constructInstanceGraph", "rungenerators", "createinstancemap"}
	for i, rec := range recs {
		if rec.PassID != want[i] {
			t.Errorf("pass run %d = %s, want %s", i, rec.PassID, want[i])
		}
	}
	if !recs[1].Changed || recs[1].Analysis {
		t.Errorf("rungenerators record = %+v", recs[1])
	}
}

func TestRecordPassRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	rec := ir.PassRecord{RunID: "run-1", Seq: 1, PassID: "rungenerators", Kind: "namespace", Namespace: "global"}
	for i := 0; i < 2; i++ {
		if err := s.RecordPassRun(ctx, rec); err != nil {
			t.Fatalf("RecordPassRun() #%d failed: %v", i, err)
		}
	}

	recs, err := s.ReadPassRuns(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadPassRuns() failed: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d pass runs, want 1", len(recs))
	}
}

func TestRecordPassRun_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	err := s.RecordPassRun(context.Background(), ir.PassRecord{RunID: "nope", Seq: 1, PassID: "x", Kind: "namespace", Namespace: "global"})
	if err == nil {
		t.Fatal("RecordPassRun() for an unknown run should violate the foreign key")
	}
}

func TestReadPassRuns_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	recs, err := s.ReadPassRuns(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ReadPassRuns() failed: %v", err)
	}
	if recs == nil {
		t.Error("ReadPassRuns() returned nil, want empty slice")
	}
}

func TestElaborations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")
	createTestRun(t, s, "run-2")

	recs := []ir.ElaborationRecord{
		{RunID: "run-1", Seq: 2, Generator: "core.wire", ArgsHash: "h8", Args: "(width:8)", Module: "core.wire__width8"},
		{RunID: "run-1", Seq: 1, Generator: "core.add", ArgsHash: "h8", Args: "(width:8)", Module: "core.add__width8"},
		{RunID: "run-2", Seq: 1, Generator: "core.wire", ArgsHash: "h4", Args: "(width:4)", Module: "core.wire__width4"},
	}
	for _, rec := range recs {
		if err := s.RecordElaboration(ctx, rec); err != nil {
			t.Fatalf("RecordElaboration() failed: %v", err)
		}
	}

	got, err := s.ReadElaborations(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadElaborations() failed: %v", err)
	}
	if !reflect.DeepEqual(got, []ir.ElaborationRecord{recs[1], recs[0]}) {
		t.Errorf("ReadElaborations() = %+v", got)
	}

	wires, err := s.FindElaborations(ctx, "core.wire")
	if err != nil {
		t.Fatalf("FindElaborations() failed: %v", err)
	}
	if !reflect.DeepEqual(wires, []ir.ElaborationRecord{recs[0], recs[2]}) {
		t.Errorf("FindElaborations() = %+v", wires)
	}
}

// TestJournalsManagerRun drives a real pass manager against the store.
func TestJournalsManagerRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := ir.NewContext()
	if _, err := corelib.Load(c); err != nil {
		t.Fatalf("corelib.Load() failed: %v", err)
	}
	tree, err := c.Resolve("core.addtree")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	top, err := c.Global().NewModuleDecl("Top", ir.Bit(), nil)
	if err != nil {
		t.Fatalf("NewModuleDecl() failed: %v", err)
	}
	if _, err := top.NewDefinition().AddInstance("t", tree, ir.Args{"width": ir.Int(4), "n": ir.Int(2)}); err != nil {
		t.Fatalf("AddInstance() failed: %v", err)
	}

	pm := pass.NewManager(c.Global(),
		pass.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		pass.WithJournal(s),
		pass.WithRunIDGenerator(pass.NewFixedGenerator("run-a")),
	)
	if err := passes.RegisterBuiltins(pm); err != nil {
		t.Fatalf("RegisterBuiltins() failed: %v", err)
	}
	if _, err := pm.Run(ctx, passes.RunGeneratorsID, passes.CreateInstanceMapID); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	run, err := s.ReadRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.Status != "ok" || run.Namespace != "global" {
		t.Errorf("run = %+v", run)
	}

	elabs, err := s.ReadElaborations(ctx, "run-a")
	if err != nil {
		t.Fatalf("ReadElaborations() failed: %v", err)
	}
	modules := map[string]bool{}
	for _, e := range elabs {
		modules[e.Module] = true
	}
	want := map[string]bool{
		"core.addtree__n2__width4": true,
		"core.addtree__n1__width4": true,
		"core.add__width4":         true,
		"core.wire__width4":        true,
	}
	if !reflect.DeepEqual(modules, want) || len(elabs) != len(want) {
		t.Errorf("elaborated modules = %v (%d records)", modules, len(elabs))
	}

	passRuns, err := s.ReadPassRuns(ctx, "run-a")
	if err != nil {
		t.Fatalf("ReadPassRuns() failed: %v", err)
	}
	var ids []string
	for i, pr := range passRuns {
		ids = append(ids, pr.PassID)
		if i > 0 && pr.Seq <= passRuns[i-1].Seq {
			t.Errorf("pass run seq not increasing: %d after %d", pr.Seq, passRuns[i-1].Seq)
		}
	}
	if !reflect.DeepEqual(ids, []string{passes.RunGeneratorsID, passes.CreateInstanceMapID}) {
		t.Errorf("journaled passes = %v", ids)
	}
}
