package pass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/hwir/internal/diag"
	"github.com/roach88/hwir/internal/ir"
)

// Manager schedules passes over one namespace.
//
// Passes are registered under unique ids. Running a pass first resolves its
// declared dependencies in order, reusing analyses that are cached and still
// valid. After a transform reports a change, every cached analysis it does
// not preserve is released.
//
// Execution is single-threaded: passes run strictly one after another and a
// Manager must not be used from more than one goroutine at a time.
type Manager struct {
	ns      *ir.Namespace
	passes  map[string]*entry
	order   []string // registration order
	logger  *slog.Logger
	journal Journal
	runIDs  RunIDGenerator
	clock   *Clock

	isolationCheck bool
}

type entry struct {
	pass  Pass
	kind  Kind
	valid bool
	runs  int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithJournal records every pass execution and elaboration to j.
func WithJournal(j Journal) Option {
	return func(m *Manager) {
		m.journal = j
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(m *Manager) {
		if g != nil {
			m.runIDs = g
		}
	}
}

// WithClock continues journal sequence numbers from an existing clock.
func WithClock(c *Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithIsolationCheck makes the Manager fingerprint every module around each
// module-pass visit and fail the run if a module other than the visited one
// changed.
func WithIsolationCheck(enabled bool) Option {
	return func(m *Manager) {
		m.isolationCheck = enabled
	}
}

// NewManager creates a Manager for ns with the instance-graph construction
// analysis already registered.
func NewManager(ns *ir.Namespace, opts ...Option) *Manager {
	m := &Manager{
		ns:     ns,
		passes: make(map[string]*entry),
		logger: slog.Default(),
		runIDs: UUIDv7Generator{},
		clock:  NewClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.Register(NewConstructInstanceGraph()); err != nil {
		panic(err)
	}
	return m
}

// Namespace returns the namespace the Manager runs on.
func (m *Manager) Namespace() *ir.Namespace { return m.ns }

// Clock returns the journal clock.
func (m *Manager) Clock() *Clock { return m.clock }

// Register adds p.
//
// The id must be unused and every declared dependency must already be
// registered, so the dependency relation is acyclic by construction. An
// InstanceGraphPass gets ConstructInstanceGraphID as an implicit first
// dependency.
func (m *Manager) Register(p Pass) error {
	b := p.base()
	if b.id == "" {
		return &Error{Code: ErrCodeInvalidPass, Message: "pass has no id"}
	}
	if _, ok := m.passes[b.id]; ok {
		return &Error{Code: ErrCodeDuplicatePass, Message: "pass already registered", Pass: b.id}
	}
	if b.pm != nil {
		return &Error{Code: ErrCodeInvalidPass, Message: "pass registered with another manager", Pass: b.id}
	}
	kind, err := kindOf(p)
	if err != nil {
		return err
	}
	if kind == KindInstanceGraph && !slices.Contains(b.deps, ConstructInstanceGraphID) {
		b.deps = append([]string{ConstructInstanceGraphID}, b.deps...)
	}
	for _, dep := range b.deps {
		if dep == b.id {
			return &Error{Code: ErrCodeInvalidPass, Message: "pass depends on itself", Pass: b.id}
		}
		if _, ok := m.passes[dep]; !ok {
			return &Error{Code: ErrCodeUnknownPass, Message: "dependency not registered: " + dep, Pass: b.id}
		}
	}

	b.pm = m
	m.passes[b.id] = &entry{pass: p, kind: kind}
	m.order = append(m.order, b.id)
	m.logger.Debug("pass registered", "pass", b.id, "kind", kind.String(), "analysis", b.analysis)
	return nil
}

// Pass returns the registered pass id.
func (m *Manager) Pass(id string) (Pass, error) {
	e, ok := m.passes[id]
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownPass, Message: "pass not registered", Pass: id}
	}
	return e.pass, nil
}

// Kind returns the kind of pass id.
func (m *Manager) Kind(id string) (Kind, error) {
	e, ok := m.passes[id]
	if !ok {
		return 0, &Error{Code: ErrCodeUnknownPass, Message: "pass not registered", Pass: id}
	}
	return e.kind, nil
}

// Passes returns every registered pass in registration order.
func (m *Manager) Passes() []Pass {
	out := make([]Pass, len(m.order))
	for i, id := range m.order {
		out[i] = m.passes[id].pass
	}
	return out
}

// IsValid reports whether analysis id holds a cached, valid result.
func (m *Manager) IsValid(id string) bool {
	e, ok := m.passes[id]
	return ok && e.valid
}

// Runs returns how many times pass id has executed.
func (m *Manager) Runs(id string) int {
	if e, ok := m.passes[id]; ok {
		return e.runs
	}
	return 0
}

// Invalidate releases the cached result of analysis id.
func (m *Manager) Invalidate(id string) error {
	e, ok := m.passes[id]
	if !ok {
		return &Error{Code: ErrCodeUnknownPass, Message: "pass not registered", Pass: id}
	}
	m.release(e)
	return nil
}

// InvalidateAll releases every cached analysis.
func (m *Manager) InvalidateAll() {
	for _, id := range m.order {
		m.release(m.passes[id])
	}
}

func (m *Manager) release(e *entry) {
	e.pass.ReleaseMemory()
	if e.valid {
		m.logger.Debug("analysis released", "pass", e.pass.ID())
	}
	e.valid = false
}

// Result describes one Run call.
type Result struct {
	RunID       string
	Diagnostics *diag.Sink

	// Executed lists pass ids in the order they ran. Cached analyses that were
	// reused do not appear.
	Executed []string

	// Changed reports whether any transform changed the IR.
	Changed bool
}

// Run executes the passes ids in order, each after its dependencies.
//
// Any error aborts the whole run: it is reported as a fatal diagnostic
// attributed to the failing pass and returned. Unknown ids are rejected
// before anything runs.
func (m *Manager) Run(ctx context.Context, ids ...string) (*Result, error) {
	res := &Result{
		RunID:       m.runIDs.Generate(),
		Diagnostics: diag.NewSink(),
	}
	nsContext := "Namespace: " + m.ns.Name()

	for _, id := range ids {
		if _, ok := m.passes[id]; !ok {
			err := &Error{Code: ErrCodeUnknownPass, Message: "pass not registered", Pass: id}
			res.Diagnostics.Fatal(id, err, nsContext)
			return res, err
		}
	}

	rc := &RunContext{
		ctx:     ctx,
		runID:   res.RunID,
		diags:   res.Diagnostics,
		logger:  m.logger.With("run_id", res.RunID),
		journal: m.journal,
		clock:   m.clock,
	}

	if m.journal != nil {
		run := ir.RunRecord{
			RunID:       res.RunID,
			Namespace:   m.ns.Name(),
			Passes:      slices.Clone(ids),
			Status:      "running",
			ToolVersion: ir.ToolVersion,
			IRVersion:   ir.IRVersion,
		}
		if err := m.journal.BeginRun(ctx, run); err != nil {
			return res, fmt.Errorf("begin run: %w", err)
		}
	}

	rc.logger.Info("run started", "namespace", m.ns.Name(), "passes", ids)
	var runErr error
	for _, id := range ids {
		if runErr = m.runPass(rc, res, id); runErr != nil {
			break
		}
	}

	status := "ok"
	if runErr != nil {
		status = "failed"
	}
	if m.journal != nil {
		if err := m.journal.FinishRun(ctx, res.RunID, status); err != nil {
			rc.logger.Warn("run status not journaled", "error", err)
		}
	}
	rc.logger.Info("run finished", "status", status, "executed", len(res.Executed), "changed", res.Changed)
	return res, runErr
}

// passFailure marks an error that was already reported to the sink by the
// pass that failed, so callers up the dependency chain do not report it again.
type passFailure struct {
	pass string
	err  error
}

func (f *passFailure) Error() string { return fmt.Sprintf("pass %s: %v", f.pass, f.err) }
func (f *passFailure) Unwrap() error { return f.err }

func (m *Manager) runPass(rc *RunContext, res *Result, id string) error {
	e := m.passes[id]
	for _, dep := range e.pass.Dependencies() {
		if err := m.runPass(rc, res, dep); err != nil {
			return err
		}
	}
	if e.pass.IsAnalysis() && e.valid {
		rc.logger.Debug("analysis reused", "pass", id)
		return nil
	}
	if err := rc.ctx.Err(); err != nil {
		rc.diags.Fatal(id, err, "Namespace: "+m.ns.Name())
		return &passFailure{pass: id, err: err}
	}

	if e.pass.IsAnalysis() {
		// An analysis starts from nothing, even after an aborted run.
		e.pass.ReleaseMemory()
	}
	rc.pass = id
	rc.logger.Debug("pass started", "pass", id, "kind", e.kind.String())
	changed, err := m.execute(rc, e)
	rc.pass = ""
	if err != nil {
		var pf *passFailure
		if errors.As(err, &pf) {
			return err
		}
		rc.diags.Fatal(id, err, "Namespace: "+m.ns.Name())
		return &passFailure{pass: id, err: err}
	}

	e.runs++
	e.valid = e.pass.IsAnalysis()
	res.Executed = append(res.Executed, id)
	rc.logger.Debug("pass finished", "pass", id, "changed", changed)
	m.journalPass(rc, e, changed)

	if !e.pass.IsAnalysis() && changed {
		res.Changed = true
		m.invalidateAfter(e)
	}
	return nil
}

// invalidateAfter releases every valid analysis the transform does not
// preserve.
func (m *Manager) invalidateAfter(transform *entry) {
	preserved := transform.pass.Preserved()
	for _, id := range m.order {
		e := m.passes[id]
		if !e.valid || slices.Contains(preserved, id) {
			continue
		}
		m.release(e)
	}
}

func (m *Manager) journalPass(rc *RunContext, e *entry, changed bool) {
	if m.journal == nil {
		return
	}
	rec := ir.PassRecord{
		RunID:     rc.runID,
		Seq:       m.clock.Stamp(),
		PassID:    e.pass.ID(),
		Kind:      e.kind.String(),
		Namespace: m.ns.Name(),
		Analysis:  e.pass.IsAnalysis(),
		Changed:   changed,
	}
	if err := m.journal.RecordPassRun(rc.ctx, rec); err != nil {
		rc.logger.Warn("pass run not journaled", "pass", e.pass.ID(), "error", err)
	}
}

func (m *Manager) execute(rc *RunContext, e *entry) (bool, error) {
	switch p := e.pass.(type) {
	case NamespacePass:
		return p.RunOnNamespace(rc, m.ns)
	case ModulePass:
		return m.runOnModules(rc, p)
	case InstanceGraphPass:
		return m.runOnInstanceGraph(rc, p)
	}
	return false, &Error{Code: ErrCodeInvalidPass, Message: "unknown pass kind", Pass: e.pass.ID()}
}

// runOnModules visits a snapshot of the namespace's modules in name order.
func (m *Manager) runOnModules(rc *RunContext, p ModulePass) (bool, error) {
	changed := false
	for _, mod := range m.ns.Modules() {
		var before map[ir.Handle]string
		if m.isolationCheck {
			var err error
			if before, err = fingerprints(m.ns); err != nil {
				return changed, err
			}
		}

		c, err := p.RunOnModule(rc, mod)
		if err != nil {
			return changed, fmt.Errorf("module %s: %w", mod.RefName(), err)
		}
		changed = changed || c

		if m.isolationCheck {
			if err := checkIsolation(m.ns, p.ID(), mod, before); err != nil {
				return changed, err
			}
		}
	}
	return changed, nil
}

func (m *Manager) runOnInstanceGraph(rc *RunContext, p InstanceGraphPass) (bool, error) {
	graph := GetAnalysis[*ConstructInstanceGraph](p, ConstructInstanceGraphID)
	if !graph.Built() {
		return false, NewAnalysisMissingError(p.ID(), "instance graph")
	}
	changed := false
	for _, node := range graph.SortedNodes() {
		c, err := p.RunOnInstanceGraphNode(rc, node)
		if err != nil {
			return changed, fmt.Errorf("node %s: %w", node, err)
		}
		changed = changed || c
	}
	return changed, nil
}

// fingerprints hashes every module of ns by handle.
func fingerprints(ns *ir.Namespace) (map[ir.Handle]string, error) {
	out := make(map[ir.Handle]string)
	for _, mod := range ns.Modules() {
		fp, err := ir.ModuleFingerprint(mod)
		if err != nil {
			return nil, err
		}
		out[mod.Handle()] = fp
	}
	return out, nil
}

// checkIsolation compares the namespace against before. Only the visited
// module may differ; modules may not be added or removed.
func checkIsolation(ns *ir.Namespace, passID string, visited *ir.Module, before map[ir.Handle]string) error {
	after, err := fingerprints(ns)
	if err != nil {
		return err
	}
	for h, fp := range before {
		if h == visited.Handle() {
			continue
		}
		now, ok := after[h]
		if !ok {
			return NewIsolationError(passID, visited.RefName(), fmt.Sprintf("removed module #%d", h))
		}
		if now != fp {
			return NewIsolationError(passID, visited.RefName(), ns.Context().Lookup(h).RefName())
		}
	}
	for h := range after {
		if _, ok := before[h]; !ok {
			return NewIsolationError(passID, visited.RefName(), "added "+ns.Context().Lookup(h).RefName())
		}
	}
	return nil
}

// PrintResult writes the result of pass id through its Printer. It fails with
// INVALID_PASS when the pass has no printer and with ANALYSIS_MISSING when id
// is an analysis without a cached result.
func (m *Manager) PrintResult(w io.Writer, id string) error {
	e, ok := m.passes[id]
	if !ok {
		return &Error{Code: ErrCodeUnknownPass, Message: "pass not registered", Pass: id}
	}
	p, ok := e.pass.(Printer)
	if !ok {
		return &Error{Code: ErrCodeInvalidPass, Message: "pass has no printer", Pass: id}
	}
	if e.pass.IsAnalysis() && !e.valid {
		return NewAnalysisMissingError(id, "namespace "+m.ns.Name())
	}
	return p.Print(w)
}

// Print writes every registered pass with its kind and dependencies.
func (m *Manager) Print(w io.Writer) error {
	for _, id := range m.order {
		e := m.passes[id]
		role := "transform"
		if e.pass.IsAnalysis() {
			role = "analysis"
		}
		if _, err := fmt.Fprintf(w, "%s [%s %s] %s\n", id, e.kind, role, e.pass.Description()); err != nil {
			return err
		}
		if deps := e.pass.Dependencies(); len(deps) > 0 {
			if _, err := fmt.Fprintf(w, "  depends on: %v\n", deps); err != nil {
				return err
			}
		}
	}
	return nil
}
