/*
errors.go - Centralized error types for the costing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the api layer maps them to
  HTTP status codes.

ERROR CATEGORIES:
  1. Configuration errors - missing or structurally invalid cost plans
  2. Reconciliation errors - invoice status unavailable, store failures
  3. Batch errors - per-rule failures collected by the evaluator
*/
package costing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPlanNotFound is returned when neither an area-level plan nor a
	// customer-level fallback exists for the recompute tuple.
	ErrPlanNotFound = errors.New("no cost plan configured")

	// ErrInvoiceNotFound is returned by invoice lookups for an unknown id.
	// A booking referencing a missing invoice counts as unbilled.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrInvoiceStatusUnavailable is returned when the billed/unbilled state
	// of a booking cannot be determined. The engine never guesses: the rule
	// is skipped and retried on the next recompute.
	ErrInvoiceStatusUnavailable = errors.New("invoice status unavailable")

	// ErrEntryNotFound is returned by ledger lookups for an unknown entry id.
	ErrEntryNotFound = errors.New("ledger entry not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRuleError reports a cost rule missing a required field.
type InvalidRuleError struct {
	Category Category
	Field    string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid cost rule %q: missing %s", e.Category, e.Field)
}

// RuleError wraps a failure while evaluating or persisting a single rule.
// The evaluator collects these and proceeds with the remaining rules.
type RuleError struct {
	Category Category
	Err      error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Category, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing record rather than a
// store failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
