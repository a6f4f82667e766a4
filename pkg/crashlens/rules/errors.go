package rules

import "fmt"

// ValidationError represents a file-level validation error, such as an
// unsupported version number or a missing table.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// RuleError represents an error in an individual rule or table entry.
type RuleError struct {
	Table   string // table the entry belongs to (e.g. "suspects.stack")
	Key     string // entry key (may be empty)
	Message string
	Cause   error
}

func (e *RuleError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s[%q]: %s", e.Table, e.Key, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *RuleError) Unwrap() error {
	return e.Cause
}
