package ir

// NOTE: These are journal records, not part of the IR itself. They describe
// what a pass-manager run did so it can be stored and read back.

// PassRecord describes one pass execution inside a run.
type PassRecord struct {
	RunID     string `json:"run_id"`
	Seq       int64  `json:"seq"` // Logical clock, strictly increasing within a run
	PassID    string `json:"pass_id"`
	Kind      string `json:"kind"` // "namespace", "module" or "instancegraph"
	Namespace string `json:"namespace"`
	Analysis  bool   `json:"analysis"`
	Changed   bool   `json:"changed"`
}

// ElaborationRecord describes one (Generator, Args) pair realized as a module.
type ElaborationRecord struct {
	RunID     string `json:"run_id"`
	Seq       int64  `json:"seq"`
	Generator string `json:"generator"` // "namespace.name"
	ArgsHash  string `json:"args_hash"`
	Args      string `json:"args"`   // Printed form, e.g. "(width:8)"
	Module    string `json:"module"` // "namespace.name"
}

// RunRecord describes one top-level pass-manager invocation.
type RunRecord struct {
	RunID       string   `json:"run_id"`
	Namespace   string   `json:"namespace"`
	Passes      []string `json:"passes"`
	Status      string   `json:"status"` // "ok" or "failed"
	ToolVersion string   `json:"tool_version"`
	IRVersion   string   `json:"ir_version"`
}
