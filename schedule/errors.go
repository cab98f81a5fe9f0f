/*
errors.go - Centralized error types for the schedule engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these onto HTTP status codes.

ERROR CATEGORIES:
  1. Rule errors - invalid recurrence parameters, rejected at account creation
  2. Store errors - persistence-level failures and uniqueness violations
  3. Capability errors - operations requiring an extended store interface

USAGE:
  if errors.Is(err, schedule.ErrInvalidRule) {
      // 400
  }

SEE ALSO:
  - rule.go: Validate returns RuleError
  - store.go: store implementations return the store sentinels
*/
package schedule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRule is returned when recurrence rule parameters fail
	// validation. Rules are validated at account creation/update time; the
	// evaluator assumes pre-validated rules.
	ErrInvalidRule = errors.New("invalid recurrence rule")

	// ErrDuplicateInstance is returned when creating a payment instance that
	// would violate the (account, due date) uniqueness invariant.
	ErrDuplicateInstance = errors.New("payment instance already exists for due date")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInstanceNotFound is returned when a referenced instance doesn't exist.
	ErrInstanceNotFound = errors.New("payment instance not found")

	// ErrStoreRequired is returned when an operation needs a store capability
	// the configured store doesn't provide (regenerate needs WithTx).
	ErrStoreRequired = errors.New("operation requires transactional store")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RuleError describes which rule field failed validation and why.
type RuleError struct {
	Field  string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid recurrence rule: %s: %s", e.Field, e.Reason)
}

func (e *RuleError) Unwrap() error { return ErrInvalidRule }

// DuplicateInstanceError identifies the colliding (account, due date) pair.
type DuplicateInstanceError struct {
	AccountID string
	DueDate   TimePoint
}

func (e *DuplicateInstanceError) Error() string {
	return fmt.Sprintf("payment instance already exists: account %s, due %s", e.AccountID, e.DueDate)
}

func (e *DuplicateInstanceError) Unwrap() error { return ErrDuplicateInstance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrDuplicateInstance)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInstanceNotFound)
}
