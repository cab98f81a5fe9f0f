/*
Package schedule provides the recurrence-date generation engine.

PURPOSE:
  Given an account's recurrence rule (weekly/monthly/yearly/custom, anchor
  date, optional end date), deterministically produce the due dates inside a
  rolling window and reconcile them against persisted payment instances
  without creating duplicates or clobbering user edits.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: owner of a recurrence rule and the default amount for new
    instances
  - Instance: one persisted, individually-editable due obligation
  - AuditEntry: fire-and-forget record of bulk generate/regenerate operations

DESIGN PRINCIPLES:
  1. Calendar dates only: equality goes through TimePoint.DateKey, never
     through instants
  2. Precision: decimal.Decimal for money, no floats
  3. No hidden state: every component operates on explicit inputs plus an
     injected store

SEE ALSO:
  - rule.go: recurrence rule variants and the occurrence evaluator
  - generate.go: windowed due-date generation
  - reconcile.go: diffing generated dates against persisted instances
*/
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a user-defined recurring obligation: the rule owner. The engine
// only reads it; account CRUD lives at the API boundary.
type Account struct {
	ID     string
	Name   string
	Amount decimal.Decimal // default amount for newly created instances
	Rule   Rule
}

// Instance is one persisted due obligation. At most one instance exists per
// (AccountID, DueDate) pair; the store enforces it.
//
// Amount, Paid, PaidAt and Note are mutated only by user action. The
// reconciler creates and deletes instances but never updates them.
type Instance struct {
	ID        string
	AccountID string
	DueDate   TimePoint
	Amount    decimal.Decimal
	Paid      bool
	PaidAt    *time.Time
	Note      string
}

// AuditEntry records a bulk schedule operation for the activity log.
type AuditEntry struct {
	ID           string
	At           time.Time
	Action       string // "generate", "regenerate"
	SubjectTable string
	SubjectID    string
	Details      string
}
