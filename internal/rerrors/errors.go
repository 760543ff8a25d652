package rerrors

import (
	"errors"
	"fmt"
)

// RetrievalError is the structured error type raised by the retrieval core.
// Only InvalidQuery and InternalInvariantViolation ever propagate out of the
// engine; every other category is recovered internally by the stage that
// produced it.
type RetrievalError struct {
	Category Category
	Severity Severity
	Stage    string // which pipeline stage raised this (e.g. "hybrid_executor")
	Message  string
	Err      error // wrapped cause, may be nil
}

func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Category, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Category, e.Stage, e.Message)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying at the call site.
func (e *RetrievalError) Retryable() bool {
	return retryable(e.Category)
}

// New creates a RetrievalError with the category's default severity.
func New(category Category, stage, message string) *RetrievalError {
	return &RetrievalError{
		Category: category,
		Severity: defaultSeverity(category),
		Stage:    stage,
		Message:  message,
	}
}

// Wrap creates a RetrievalError wrapping an underlying cause.
func Wrap(category Category, stage, message string, err error) *RetrievalError {
	return &RetrievalError{
		Category: category,
		Severity: defaultSeverity(category),
		Stage:    stage,
		Message:  message,
		Err:      err,
	}
}

// InvalidQuery builds the error for an empty or too-long query.
func InvalidQuery(reason string) *RetrievalError {
	return New(CategoryInvalidQuery, "normalize", reason)
}

// InternalInvariantViolation builds the error for a broken invariant.
// Callers must never swallow this silently.
func InternalInvariantViolation(stage, message string) *RetrievalError {
	return New(CategoryInternalInvariantViolation, stage, message)
}

// IsCategory reports whether err (or any error it wraps) is a
// RetrievalError of the given category.
func IsCategory(err error, category Category) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Category == category
	}
	return false
}

// FormatForLog renders the error for structured log attributes.
func (e *RetrievalError) FormatForLog() map[string]any {
	fields := map[string]any{
		"category": string(e.Category),
		"severity": string(e.Severity),
		"stage":    e.Stage,
		"message":  e.Message,
	}
	if e.Err != nil {
		fields["cause"] = e.Err.Error()
	}
	return fields
}
