package diag

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwir/internal/ir"
)

func TestSinkFatal(t *testing.T) {
	s := NewSink()
	assert.False(t, s.HasFatal())

	s.Warn("p", "careful")
	assert.False(t, s.HasFatal())

	err := fmt.Errorf("elaborating: %w", &ir.Error{
		Code:    ir.ErrCodeConfig,
		Message: "args and params are not the same",
		Context: []string{"Args: ()", "Params: (width:int)"},
	})
	d := s.Fatal("rungenerators", err, "Namespace: global")

	assert.True(t, s.HasFatal())
	assert.Equal(t, SevFatal, d.Severity)
	assert.Equal(t, "CONFIG_MISMATCH", d.Code)
	assert.Equal(t, []string{"Args: ()", "Params: (width:int)", "Namespace: global"}, d.Context)
	require.Equal(t, 2, s.Len())
}

type codedErr struct{}

func (codedErr) Error() string     { return "bad pass" }
func (codedErr) ErrorCode() string { return "UNKNOWN_PASS" }

func TestFromError(t *testing.T) {
	d := FromError(errors.New("plain"))
	assert.Equal(t, "plain", d.Message)
	assert.Empty(t, d.Code)

	d = FromError(codedErr{})
	assert.Equal(t, "UNKNOWN_PASS", d.Code)

	d = FromError(&ir.Error{Code: ir.ErrCodeElaboration, Message: "type generator failed", Err: errors.New("width must be positive")})
	assert.Equal(t, "type generator failed: width must be positive", d.Message)
}

func TestSinkFormat(t *testing.T) {
	s := NewSink()
	s.Info("", "hello")
	s.Fatal("createinstancemap", &ir.Error{
		Code:    ir.ErrCodeLookup,
		Message: "could not find module in namespace",
		Context: []string{"Module: A", "Namespace: global"},
	})

	var buf bytes.Buffer
	require.NoError(t, s.Format(&buf))
	want := "INFO: hello\n" +
		"FATAL [LOOKUP_FAILED] (createinstancemap): could not find module in namespace\n" +
		"  Module: A\n" +
		"  Namespace: global\n"
	assert.Equal(t, want, buf.String())
}
