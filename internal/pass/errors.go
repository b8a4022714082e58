package pass

import (
	"errors"
	"fmt"
)

// Error is a fatal pass-manager condition.
//
// Pass-manager errors include:
//   - Unknown pass: an id that was never registered
//   - Duplicate pass: an id registered twice
//   - Invalid pass: a pass that implements no kind, or more than one
//   - Isolation violation: a module pass mutated a module it was not visiting
//   - Analysis missing: an analysis result requested before it was computed
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Pass is the id of the affected pass.
	Pass string
}

// ErrorCode categorizes pass-manager errors.
type ErrorCode string

const (
	// ErrCodeUnknownPass indicates an id that is not registered.
	ErrCodeUnknownPass ErrorCode = "UNKNOWN_PASS"

	// ErrCodeDuplicatePass indicates an id registered twice.
	ErrCodeDuplicatePass ErrorCode = "DUPLICATE_PASS"

	// ErrCodeInvalidPass indicates a malformed pass.
	ErrCodeInvalidPass ErrorCode = "INVALID_PASS"

	// ErrCodeIsolation indicates a module pass touched a sibling module.
	ErrCodeIsolation ErrorCode = "ISOLATION_VIOLATION"

	// ErrCodeAnalysisMissing indicates a result that was never computed.
	ErrCodeAnalysisMissing ErrorCode = "ANALYSIS_MISSING"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Pass != "" {
		return fmt.Sprintf("%s: %s (pass=%s)", e.Code, e.Message, e.Pass)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode returns the category code for diagnostic sinks.
func (e *Error) ErrorCode() string { return string(e.Code) }

func codeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsUnknownPassError returns true if err names an unregistered pass.
func IsUnknownPassError(err error) bool { return codeOf(err) == ErrCodeUnknownPass }

// IsDuplicatePassError returns true if err is a duplicate registration.
func IsDuplicatePassError(err error) bool { return codeOf(err) == ErrCodeDuplicatePass }

// IsInvalidPassError returns true if err rejects a malformed pass.
func IsInvalidPassError(err error) bool { return codeOf(err) == ErrCodeInvalidPass }

// IsIsolationError returns true if err is a module isolation violation.
func IsIsolationError(err error) bool { return codeOf(err) == ErrCodeIsolation }

// IsAnalysisMissingError returns true if err reports an uncomputed analysis.
func IsAnalysisMissingError(err error) bool { return codeOf(err) == ErrCodeAnalysisMissing }

// UndeclaredDependencyError is the panic value raised when a pass asks for an
// analysis it did not declare as a dependency. It is an authoring defect in
// the pass, so it never goes through the diagnostic sink.
type UndeclaredDependencyError struct {
	Pass       string
	Dependency string
}

func (e *UndeclaredDependencyError) Error() string {
	return fmt.Sprintf("%s not declared as a dependency for %s", e.Dependency, e.Pass)
}

// NewIsolationError creates an Error for a module pass that changed a module
// other than the one it was visiting.
func NewIsolationError(passID, visited, changed string) *Error {
	return &Error{
		Code:    ErrCodeIsolation,
		Message: fmt.Sprintf("visiting %s changed %s", visited, changed),
		Pass:    passID,
	}
}

// NewAnalysisMissingError creates an Error for a result that is not cached.
func NewAnalysisMissingError(passID, what string) *Error {
	return &Error{
		Code:    ErrCodeAnalysisMissing,
		Message: "missing analysis result for " + what,
		Pass:    passID,
	}
}
