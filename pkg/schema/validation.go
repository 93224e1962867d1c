package schema

import "fmt"

// ValidationSeverity separates blocking issues from advisory ones.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue locates one problem in a workflow definition.
// Path uses the JSON pointer-ish form "nodes[2].config.url".
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult collects the issues found by every validation stage.
// A result with warnings only is still valid and may be persisted.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityError})
}

func (r *ValidationResult) AddErrorf(path, code, format string, args ...any) {
	r.AddError(path, code, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// Merge appends other's issues. A nil other is ignored.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other != nil {
		r.Errors = append(r.Errors, other.Errors...)
		r.Warnings = append(r.Warnings, other.Warnings...)
	}
}

// HasCode reports whether any error carries code.
func (r *ValidationResult) HasCode(code string) bool {
	for _, is := range r.Errors {
		if is.Code == code {
			return true
		}
	}
	return false
}

// ToError returns nil for a valid result. Otherwise it returns a FlowError
// whose details carry the full issue lists. A single error keeps its own
// code, so a reference cycle surfaces as CYCLE_DETECTED.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}
	fe := NewError(ErrCodeValidation, r.Errors[0].Message)
	switch n := len(r.Errors); {
	case n == 1 && r.Errors[0].Code != "":
		fe.Code = r.Errors[0].Code
	case n > 1:
		fe.Message = fmt.Sprintf("workflow validation failed with %d errors", n)
	}
	return fe.WithDetails(map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"errors":        r.Errors,
		"warnings":      r.Warnings,
	})
}
