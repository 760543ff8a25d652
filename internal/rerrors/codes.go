// Package rerrors provides the structured error taxonomy for the retrieval
// core: InvalidQuery, DependencyTimeout, AuthorizationDenied, IndexError,
// PartialResult, InternalInvariantViolation.
package rerrors

// Category classifies a retrieval error for dispatch and formatting.
type Category string

const (
	// CategoryInvalidQuery marks a query rejected before retrieval starts
	// (empty, too long). Always surfaced to the caller.
	CategoryInvalidQuery Category = "INVALID_QUERY"

	// CategoryDependencyTimeout marks an index/LLM/embedder/cross-encoder/
	// web call that exceeded its stage timeout. Recovered by skipping the
	// stage; feeds the relevant circuit breaker.
	CategoryDependencyTimeout Category = "DEPENDENCY_TIMEOUT"

	// CategoryAuthorizationDenied marks an LLM or web call rejected for
	// auth reasons. The rewriter permanently downgrades to rule-based
	// rewriting on repeated occurrences; other stages continue unaffected.
	CategoryAuthorizationDenied Category = "AUTHORIZATION_DENIED"

	// CategoryIndexError marks a missing collection or malformed filter.
	// The stage yields an empty result and the error is logged once per
	// collection per process.
	CategoryIndexError Category = "INDEX_ERROR"

	// CategoryPartialResult is an internal flag surfaced on RetrievalOutput
	// as Partial=true when the query-level timeout cancelled retrieval.
	CategoryPartialResult Category = "PARTIAL_RESULT"

	// CategoryInternalInvariantViolation marks a violated invariant
	// (duplicate chunk ID, out-of-order scores, etc). Logged and surfaced
	// as a generic failure; never swallowed silently.
	CategoryInternalInvariantViolation Category = "INTERNAL_INVARIANT_VIOLATION"
)

// Severity mirrors the teacher's error severity vocabulary.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// defaultSeverity returns the severity implied by a category when none is
// given explicitly.
func defaultSeverity(c Category) Severity {
	switch c {
	case CategoryInvalidQuery:
		return SeverityError
	case CategoryDependencyTimeout:
		return SeverityWarning
	case CategoryAuthorizationDenied:
		return SeverityWarning
	case CategoryIndexError:
		return SeverityWarning
	case CategoryPartialResult:
		return SeverityInfo
	case CategoryInternalInvariantViolation:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// retryable reports whether a failure in this category is worth retrying
// at the call site (as opposed to falling back / skipping the stage).
func retryable(c Category) bool {
	switch c {
	case CategoryDependencyTimeout:
		return true
	default:
		return false
	}
}
