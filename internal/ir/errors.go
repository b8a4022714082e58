package ir

import (
	"errors"
	"strings"
)

// ErrorCode categorizes IR errors.
type ErrorCode string

const (
	// ErrCodeConfig indicates bound Args do not match the formal Params.
	ErrCodeConfig ErrorCode = "CONFIG_MISMATCH"

	// ErrCodeLookup indicates a named entity does not exist.
	ErrCodeLookup ErrorCode = "LOOKUP_FAILED"

	// ErrCodeDuplicate indicates a name is already taken.
	ErrCodeDuplicate ErrorCode = "DUPLICATE_NAME"

	// ErrCodeElaboration indicates a generator failed for the given Args.
	ErrCodeElaboration ErrorCode = "ELABORATION_FAILED"

	// ErrCodeCycle indicates a cycle in the instance relation.
	ErrCodeCycle ErrorCode = "INSTANCE_CYCLE"

	// ErrCodeInvalid indicates malformed IR (bad select path, bad linkage, ...).
	ErrCodeInvalid ErrorCode = "INVALID_IR"
)

// Error is a fatal IR condition.
//
// Context holds short lines such as "Namespace: global" or "Args: (width:8)"
// that diagnostic sinks print under the message.
type Error struct {
	Code    ErrorCode
	Message string
	Context []string

	// Err is an optional underlying cause (e.g. a generator function's error).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Context, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode of err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfigError reports whether err is an Args/Params mismatch.
func IsConfigError(err error) bool { return CodeOf(err) == ErrCodeConfig }

// IsLookupError reports whether err is a failed lookup.
func IsLookupError(err error) bool { return CodeOf(err) == ErrCodeLookup }

// IsDuplicateError reports whether err is a name collision.
func IsDuplicateError(err error) bool { return CodeOf(err) == ErrCodeDuplicate }

// IsElaborationError reports whether err came from a failing generator.
func IsElaborationError(err error) bool { return CodeOf(err) == ErrCodeElaboration }

// IsCycleError reports whether err is an instance-relation cycle.
func IsCycleError(err error) bool { return CodeOf(err) == ErrCodeCycle }

func lookupError(what, name string, ns *Namespace) *Error {
	ctx := []string{what + ": " + name}
	if ns != nil {
		ctx = append(ctx, "Namespace: "+ns.Name())
	}
	return &Error{
		Code:    ErrCodeLookup,
		Message: "could not find " + strings.ToLower(what) + " in namespace",
		Context: ctx,
	}
}

func duplicateError(name string, ns *Namespace) *Error {
	return &Error{
		Code:    ErrCodeDuplicate,
		Message: "name already defined: " + name,
		Context: []string{"Namespace: " + ns.Name()},
	}
}
