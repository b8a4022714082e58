package ir

// Version constants for the IR schema and tool.
const (
	// IRVersion is the IR schema version recorded in run journals.
	IRVersion = "1"

	// ToolVersion is the hwir tool version.
	ToolVersion = "0.1.0"
)
