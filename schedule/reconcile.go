package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// RECONCILIATION ENGINE - Diff generated dates against persisted instances
// =============================================================================

// Mode selects how reconciliation treats existing instances.
type Mode string

const (
	// ModeSkipExisting creates instances only for dates with no existing
	// instance. Existing instances are reported as skipped and never
	// touched, preserving user edits (changed amount, paid state, notes).
	ModeSkipExisting Mode = "skip_existing"

	// ModeRegenerate deletes every existing instance for the account and
	// recreates the full set. Destructive; the boundary gates it behind an
	// explicit user confirmation, never this package.
	ModeRegenerate Mode = "regenerate"
)

// Input is one reconciliation request. Existing is the caller's snapshot of
// persisted due dates; the engine issues no reads beyond it.
type Input struct {
	AccountID     string
	DueDates      []TimePoint
	Existing      []TimePoint
	Mode          Mode
	DefaultAmount decimal.Decimal
}

// Result reports what a reconciliation pass did.
type Result struct {
	Created []TimePoint
	Skipped []TimePoint
}

func (r Result) CreatedCount() int { return len(r.Created) }
func (r Result) SkippedCount() int { return len(r.Skipped) }

// Reconciler applies reconciliation decisions through the instance store.
// It holds no state across calls; the caller serializes runs per account.
type Reconciler struct {
	Store InstanceStore
	Log   *logrus.Logger
}

// Reconcile diffs in.DueDates against in.Existing and issues creates (and,
// in regenerate mode, deletes) through the store.
//
// Skip-existing failures leave already-created dates committed; a retry is
// safe because existence is re-checked per date. Regenerate runs inside a
// store transaction, so a failure rolls back to the prior instance set.
func (rc *Reconciler) Reconcile(ctx context.Context, in Input) (Result, error) {
	switch in.Mode {
	case ModeSkipExisting:
		return rc.skipExisting(ctx, rc.Store, in)
	case ModeRegenerate:
		return rc.regenerate(ctx, in)
	default:
		return Result{}, fmt.Errorf("unknown reconciliation mode %q", in.Mode)
	}
}

func (rc *Reconciler) skipExisting(ctx context.Context, store InstanceStore, in Input) (Result, error) {
	existing := make(map[string]bool, len(in.Existing))
	for _, d := range in.Existing {
		existing[d.DateKey()] = true
	}

	var res Result
	for _, due := range in.DueDates {
		if existing[due.DateKey()] {
			res.Skipped = append(res.Skipped, due)
			continue
		}
		if err := store.CreateInstance(ctx, newInstance(in.AccountID, due, in.DefaultAmount)); err != nil {
			return res, fmt.Errorf("create instance for %s: %w", due.DateKey(), err)
		}
		res.Created = append(res.Created, due)
	}
	return res, nil
}

func (rc *Reconciler) regenerate(ctx context.Context, in Input) (Result, error) {
	txStore, ok := rc.Store.(TxInstanceStore)
	if !ok {
		return Result{}, fmt.Errorf("regenerate account %s: %w", in.AccountID, ErrStoreRequired)
	}

	var res Result
	err := txStore.WithTx(ctx, func(store InstanceStore) error {
		if err := store.DeleteInstances(ctx, in.AccountID); err != nil {
			return fmt.Errorf("delete instances: %w", err)
		}
		for _, due := range in.DueDates {
			if err := store.CreateInstance(ctx, newInstance(in.AccountID, due, in.DefaultAmount)); err != nil {
				return fmt.Errorf("create instance for %s: %w", due.DateKey(), err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	res.Created = in.DueDates
	return res, nil
}

func newInstance(accountID string, due TimePoint, amount decimal.Decimal) Instance {
	return Instance{
		ID:        uuid.NewString(),
		AccountID: accountID,
		DueDate:   due,
		Amount:    amount,
		Paid:      false,
		PaidAt:    nil,
	}
}
