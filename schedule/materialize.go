package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// MATERIALIZER - Rule in, payment instances out
// =============================================================================

// Materializer wires the generator and reconciler to the stores: it turns an
// account's recurrence rule into persisted payment instances.
//
// Callers must not run two materializations for the same account
// concurrently; the engine does no locking of its own.
type Materializer struct {
	Accounts  AccountSource
	Store     TxInstanceStore
	Audit     AuditLog
	Generator *Generator
	Log       *logrus.Logger
}

// GenerateFor materializes one account's schedule. The existing-instance
// snapshot is taken here, immediately before reconciliation.
func (m *Materializer) GenerateFor(ctx context.Context, accountID string, mode Mode) (Result, error) {
	account, err := m.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return Result{}, err
	}

	dueDates := m.Generator.DueDates(account.Rule)

	instances, err := m.Store.ListInstances(ctx, accountID)
	if err != nil {
		return Result{}, fmt.Errorf("list instances for %s: %w", accountID, err)
	}
	existing := make([]TimePoint, 0, len(instances))
	for _, inst := range instances {
		existing = append(existing, inst.DueDate)
	}

	rc := &Reconciler{Store: m.Store, Log: m.Log}
	res, err := rc.Reconcile(ctx, Input{
		AccountID:     accountID,
		DueDates:      dueDates,
		Existing:      existing,
		Mode:          mode,
		DefaultAmount: account.Amount,
	})
	if err != nil {
		return res, err
	}

	m.audit(ctx, mode, accountID, res)
	return res, nil
}

// GenerateAll runs a skip-existing pass over every account. Per-account
// failures are logged and the pass continues; the rolling window advancing
// for one account should not block the others.
func (m *Materializer) GenerateAll(ctx context.Context) (Summary, error) {
	accounts, err := m.Accounts.ListAccounts(ctx)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, account := range accounts {
		res, err := m.GenerateFor(ctx, account.ID, ModeSkipExisting)
		if err != nil {
			sum.Failed++
			if m.Log != nil {
				m.Log.WithError(err).WithField("account", account.ID).
					Error("schedule generation failed")
			}
			continue
		}
		sum.Accounts++
		sum.Created += res.CreatedCount()
		sum.Skipped += res.SkippedCount()
	}
	return sum, nil
}

// Summary aggregates a generate-all pass.
type Summary struct {
	Accounts int
	Created  int
	Skipped  int
	Failed   int
}

// audit is fire-and-forget: a failed audit write never fails the operation.
func (m *Materializer) audit(ctx context.Context, mode Mode, accountID string, res Result) {
	if m.Audit == nil {
		return
	}
	action := "generate"
	if mode == ModeRegenerate {
		action = "regenerate"
	}
	entry := AuditEntry{
		ID:           uuid.NewString(),
		At:           time.Now().UTC(),
		Action:       action,
		SubjectTable: "payment_instances",
		SubjectID:    accountID,
		Details:      fmt.Sprintf("created %d, skipped %d", res.CreatedCount(), res.SkippedCount()),
	}
	if err := m.Audit.LogAction(ctx, entry); err != nil && m.Log != nil {
		m.Log.WithError(err).WithField("account", accountID).Warn("audit write failed")
	}
}
