package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/roach88/hwir/internal/diag"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A pass failed or reported a fatal diagnostic
	ExitCommandError = 2 // Command error (bad flags, unreadable design, journal not found, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostics (defaults to Writer)
	Verbose   bool
	Color     string // "auto" | "on" | "off"
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status      string           `json:"status"`                // "ok" or "error"
	Data        any              `json:"data,omitempty"`        // success payload
	Error       *CLIError        `json:"error,omitempty"`       // error details
	RunID       string           `json:"run_id,omitempty"`      // pass-manager run, if any
	Diagnostics []DiagnosticJSON `json:"diagnostics,omitempty"` // run diagnostics
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // e.g. "CONFIG_MISMATCH", "UNKNOWN_PASS"
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// DiagnosticJSON is a diagnostic as emitted in JSON output.
type DiagnosticJSON struct {
	Severity string   `json:"severity"`
	Code     string   `json:"code,omitempty"`
	Pass     string   `json:"pass,omitempty"`
	Message  string   `json:"message"`
	Context  []string `json:"context,omitempty"`
}

func diagnosticsJSON(items []diag.Diagnostic) []DiagnosticJSON {
	out := make([]DiagnosticJSON, len(items))
	for i, d := range items {
		out[i] = DiagnosticJSON{
			Severity: d.Severity.String(),
			Code:     d.Code,
			Pass:     d.Pass,
			Message:  d.Message,
			Context:  d.Context,
		}
	}
	return out
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

func (f *OutputFormatter) writeJSON(resp CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(resp)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Diagnostics writes run diagnostics to the error writer, one block each,
// coloured by severity.
func (f *OutputFormatter) Diagnostics(items []diag.Diagnostic) {
	w := f.GetErrWriter()
	for _, d := range items {
		c := f.severityColor(d.Severity)
		fmt.Fprintln(w, c.Sprint(d.String()))
	}
}

func (f *OutputFormatter) severityColor(sev diag.Severity) *color.Color {
	var c *color.Color
	switch sev {
	case diag.SevFatal, diag.SevError:
		c = color.New(color.FgRed, color.Bold)
	case diag.SevWarning:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgCyan)
	}
	switch f.Color {
	case "on":
		c.EnableColor()
	case "off":
		c.DisableColor()
	}
	return c
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
