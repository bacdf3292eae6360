package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationReport_EmptyIsValid(t *testing.T) {
	r := &ValidationReport{}
	assert.True(t, r.Valid())
	assert.Nil(t, r.ToError())
}

func TestValidationReport_NodeIssues(t *testing.T) {
	r := &ValidationReport{}
	r.AddNodeWarning("n1", "input a is not connected")
	assert.True(t, r.Valid(), "warnings alone should not make the report invalid")

	r.AddNodeError("n2", "division by zero")
	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "n2", r.Errors[0].NodeID)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
}

func TestValidationReport_Merge(t *testing.T) {
	r1 := &ValidationReport{}
	r1.AddError("/nodes/0", ErrCodeValidation, "err1")

	r2 := &ValidationReport{}
	r2.AddNodeError("n1", "err2")
	r2.AddNodeWarning("n1", "warn")

	r1.Merge(r2)
	r1.Merge(nil)

	assert.Len(t, r1.Errors, 2)
	assert.Len(t, r1.Warnings, 1)
}

func TestValidationReport_ToError(t *testing.T) {
	r := &ValidationReport{}
	r.AddNodeError("n1", "bad input")

	err := r.ToError()
	require.Error(t, err)
	var fe *FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrCodeValidation, fe.Code)
	assert.Equal(t, "bad input", fe.Message)
	assert.Equal(t, 1, fe.Details["error_count"])

	r.AddNodeError("n2", "also bad")
	err = r.ToError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 invalid nodes")
}

func TestFlowError_Format(t *testing.T) {
	err := NewErrorf(ErrCodeInvalidPort, "port %d out of range", 3)
	assert.Equal(t, "[INVALID_PORT] port 3 out of range", err.Error())

	err = err.WithNode("abc")
	assert.Equal(t, "[INVALID_PORT] node abc: port 3 out of range", err.Error())
}

func TestFlowError_CodeThroughWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrCodeStore, "save failed").WithCause(cause)
	wrapped := fmt.Errorf("autosave: %w", err)

	assert.True(t, IsCode(wrapped, ErrCodeStore))
	assert.False(t, IsCode(wrapped, ErrCodeNotFound))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "", CodeOf(cause))
	assert.False(t, IsCode(nil, ErrCodeStore))
}

func TestNodeRecord_ModelName(t *testing.T) {
	rec := NodeRecord{Model: map[string]any{ModelNameKey: "NumberSource", "value": 1.5}}
	assert.Equal(t, "NumberSource", rec.ModelName())
	assert.Equal(t, "", NodeRecord{}.ModelName())
}
