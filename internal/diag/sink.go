package diag

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/hwir/internal/ir"
)

// Diagnostic is one structured message.
//
// Context lines carry the "Namespace: x" / "Generator: y" style detail that
// is printed indented under the message.
type Diagnostic struct {
	Severity Severity
	Code     string
	Message  string
	Context  []string

	// Pass is the id of the pass that reported the diagnostic, if any.
	Pass string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", d.Severity)
	if d.Code != "" {
		fmt.Fprintf(&b, " [%s]", d.Code)
	}
	if d.Pass != "" {
		fmt.Fprintf(&b, " (%s)", d.Pass)
	}
	fmt.Fprintf(&b, ": %s", d.Message)
	for _, line := range d.Context {
		b.WriteString("\n  ")
		b.WriteString(line)
	}
	return b.String()
}

// Sink accumulates diagnostics for a single run.
type Sink struct {
	items []Diagnostic
	fatal bool
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Report appends d.
func (s *Sink) Report(d Diagnostic) {
	if d.Severity == SevFatal {
		s.fatal = true
	}
	s.items = append(s.items, d)
}

// Warn records a warning.
func (s *Sink) Warn(pass, msg string, context ...string) {
	s.Report(Diagnostic{Severity: SevWarning, Message: msg, Context: context, Pass: pass})
}

// Info records an informational message.
func (s *Sink) Info(pass, msg string, context ...string) {
	s.Report(Diagnostic{Severity: SevInfo, Message: msg, Context: context, Pass: pass})
}

// Fatal converts err into a fatal diagnostic attributed to pass and records
// it. Codes and context lines of *ir.Error values are preserved.
func (s *Sink) Fatal(pass string, err error, context ...string) Diagnostic {
	d := FromError(err)
	d.Severity = SevFatal
	d.Pass = pass
	d.Context = append(d.Context, context...)
	s.Report(d)
	return d
}

// HasFatal reports whether a fatal diagnostic was recorded.
func (s *Sink) HasFatal() bool { return s.fatal }

// Len returns the number of diagnostics.
func (s *Sink) Len() int { return len(s.items) }

// Items returns the recorded diagnostics in report order.
// The returned slice must not be modified.
func (s *Sink) Items() []Diagnostic { return s.items }

// Format writes every diagnostic to w, one block per diagnostic.
func (s *Sink) Format(w io.Writer) error {
	for _, d := range s.items {
		if _, err := fmt.Fprintln(w, d.String()); err != nil {
			return err
		}
	}
	return nil
}

// Coder is implemented by errors that carry a category code.
type Coder interface {
	ErrorCode() string
}

// FromError builds an error diagnostic from err. An *ir.Error anywhere in the
// chain contributes its code, message and context lines.
func FromError(err error) Diagnostic {
	if err == nil {
		return Diagnostic{Severity: SevError}
	}
	var irErr *ir.Error
	if errors.As(err, &irErr) {
		msg := irErr.Message
		if irErr.Err != nil {
			msg += ": " + irErr.Err.Error()
		}
		return Diagnostic{
			Severity: SevError,
			Code:     string(irErr.Code),
			Message:  msg,
			Context:  append([]string(nil), irErr.Context...),
		}
	}
	d := Diagnostic{Severity: SevError, Message: err.Error()}
	var c Coder
	if errors.As(err, &c) {
		d.Code = c.ErrorCode()
	}
	return d
}
