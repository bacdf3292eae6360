package schema

import "fmt"

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single problem found in a scene, located either by
// node ID or by a document path.
type ValidationIssue struct {
	NodeID   string             `json:"node_id,omitempty"`
	Path     string             `json:"path,omitempty"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationReport aggregates the issues found across a scene.
type ValidationReport struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationReport) Valid() bool {
	return len(r.Errors) == 0
}

// AddNodeError records an error-severity issue raised by a node.
func (r *ValidationReport) AddNodeError(nodeID, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		NodeID: nodeID, Code: ErrCodeValidation, Message: message, Severity: SeverityError,
	})
}

// AddNodeWarning records a warning-severity issue raised by a node.
func (r *ValidationReport) AddNodeWarning(nodeID, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		NodeID: nodeID, Code: ErrCodeValidation, Message: message, Severity: SeverityWarning,
	})
}

// AddError appends an error-severity issue located by document path.
func (r *ValidationReport) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError,
	})
}

// Merge combines another report into this one.
func (r *ValidationReport) Merge(other *ValidationReport) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ToError converts the report to a FlowError if invalid, nil if valid.
func (r *ValidationReport) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("scene has %d invalid nodes", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
