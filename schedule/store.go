/*
store.go - Persistence interfaces for accounts, instances and audit entries

PURPOSE:
  Defines the boundary between the engine and the local relational store.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  InstanceStore:   Payment instance persistence (create, list, exists, delete)
  TxInstanceStore: InstanceStore plus atomic multi-write transactions
  AccountSource:   Supplies accounts and their recurrence rules
  AuditLog:        Write-only side channel for bulk operations

UNIQUENESS:
  The (account, due date) pair is unique at this layer. CreateInstance
  returns ErrDuplicateInstance on a collision, which makes skip-existing
  reconciliation retry-safe: a retried create of an already-committed date
  fails cleanly instead of duplicating.

ATOMIC REGENERATE:
  Regenerate (delete-then-recreate) runs inside WithTx so a failed create
  rolls the delete back. Stores that cannot provide WithTx cannot serve
  regenerate; the reconciler returns ErrStoreRequired.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - schedule/store: in-memory store for tests and dev

SEE ALSO:
  - reconcile.go: the only writer of instances through these interfaces
  - materialize.go: orchestrates stores, generator and audit log
*/
package schedule

import "context"

// InstanceStore handles payment instance persistence.
type InstanceStore interface {
	// CreateInstance persists a new instance. Returns ErrDuplicateInstance
	// if the (account, due date) pair already exists.
	CreateInstance(ctx context.Context, inst Instance) error

	// ListInstances returns all instances for an account, ordered by due date.
	ListInstances(ctx context.Context, accountID string) ([]Instance, error)

	// InstanceExists reports whether an instance exists for the due date.
	InstanceExists(ctx context.Context, accountID string, due TimePoint) (bool, error)

	// DeleteInstances removes every instance for an account.
	DeleteInstances(ctx context.Context, accountID string) error
}

// TxInstanceStore wraps InstanceStore with transaction support.
// If fn returns an error the transaction is rolled back, otherwise committed.
type TxInstanceStore interface {
	InstanceStore

	WithTx(ctx context.Context, fn func(InstanceStore) error) error
}

// AccountSource supplies recurrence rule inputs.
type AccountSource interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
}

// AuditLog records bulk operations. Failures here must not abort the
// triggering operation; callers log and continue.
type AuditLog interface {
	LogAction(ctx context.Context, entry AuditEntry) error
}
