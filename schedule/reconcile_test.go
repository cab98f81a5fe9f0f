package schedule_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bill-engine/schedule"
	memstore "github.com/warp/bill-engine/schedule/store"
)

func points(keys ...string) []schedule.TimePoint {
	result := make([]schedule.TimePoint, 0, len(keys))
	for _, k := range keys {
		tp, err := schedule.ParseDate(k)
		if err != nil {
			panic(err)
		}
		result = append(result, tp)
	}
	return result
}

func TestReconcile_SkipExisting_CreatesMissing(t *testing.T) {
	mem := memstore.NewTxMemory()
	rc := &schedule.Reconciler{Store: mem}

	res, err := rc.Reconcile(context.Background(), schedule.Input{
		AccountID:     "acct-1",
		DueDates:      points("2025-02-15", "2025-03-15", "2025-04-15"),
		Mode:          schedule.ModeSkipExisting,
		DefaultAmount: decimal.RequireFromString("49.99"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.CreatedCount())
	assert.Equal(t, 0, res.SkippedCount())

	insts, err := mem.ListInstances(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, insts, 3)
	for _, inst := range insts {
		assert.Equal(t, "acct-1", inst.AccountID)
		assert.True(t, inst.Amount.Equal(decimal.RequireFromString("49.99")))
		assert.False(t, inst.Paid)
		assert.Nil(t, inst.PaidAt)
		assert.NotEmpty(t, inst.ID)
	}
}

func TestReconcile_SkipExisting_Idempotent(t *testing.T) {
	// GIVEN: a first pass that created everything
	// WHEN: the same input is reconciled again
	// THEN: nothing new is created, all dates report as skipped
	mem := memstore.NewTxMemory()
	rc := &schedule.Reconciler{Store: mem}
	in := schedule.Input{
		AccountID:     "acct-1",
		DueDates:      points("2025-02-15", "2025-03-15"),
		Mode:          schedule.ModeSkipExisting,
		DefaultAmount: decimal.NewFromInt(10),
	}

	first, err := rc.Reconcile(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 2, first.CreatedCount())

	in.Existing = in.DueDates
	second, err := rc.Reconcile(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 0, second.CreatedCount())
	assert.Equal(t, 2, second.SkippedCount())

	insts, _ := mem.ListInstances(context.Background(), "acct-1")
	assert.Len(t, insts, 2)
}

func TestReconcile_SkipExisting_PreservesUserEdits(t *testing.T) {
	mem := memstore.NewTxMemory()
	rc := &schedule.Reconciler{Store: mem}
	ctx := context.Background()
	in := schedule.Input{
		AccountID:     "acct-1",
		DueDates:      points("2025-02-15", "2025-03-15"),
		Mode:          schedule.ModeSkipExisting,
		DefaultAmount: decimal.NewFromInt(10),
	}

	_, err := rc.Reconcile(ctx, in)
	require.NoError(t, err)

	// User marks February paid with an adjusted amount.
	insts, _ := mem.ListInstances(ctx, "acct-1")
	paidAt := time.Date(2025, time.February, 16, 12, 0, 0, 0, time.UTC)
	edited := insts[0]
	edited.Paid = true
	edited.PaidAt = &paidAt
	edited.Amount = decimal.RequireFromString("12.50")
	edited.Note = "late fee included"
	require.NoError(t, mem.UpdateInstance(ctx, edited))

	in.Existing = in.DueDates
	_, err = rc.Reconcile(ctx, in)
	require.NoError(t, err)

	after, _ := mem.ListInstances(ctx, "acct-1")
	require.Len(t, after, 2)
	assert.True(t, after[0].Paid)
	assert.Equal(t, "late fee included", after[0].Note)
	assert.True(t, after[0].Amount.Equal(decimal.RequireFromString("12.50")))
}

func TestReconcile_Regenerate_ReplacesEverything(t *testing.T) {
	// GIVEN: existing instances with user edits
	// WHEN: regenerating
	// THEN: the set matches the fresh due dates exactly, edits are gone
	mem := memstore.NewTxMemory()
	rc := &schedule.Reconciler{Store: mem}
	ctx := context.Background()

	_, err := rc.Reconcile(ctx, schedule.Input{
		AccountID:     "acct-1",
		DueDates:      points("2025-02-15", "2025-03-15"),
		Mode:          schedule.ModeSkipExisting,
		DefaultAmount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	insts, _ := mem.ListInstances(ctx, "acct-1")
	edited := insts[0]
	edited.Paid = true
	require.NoError(t, mem.UpdateInstance(ctx, edited))

	res, err := rc.Reconcile(ctx, schedule.Input{
		AccountID:     "acct-1",
		DueDates:      points("2025-02-20", "2025-03-20", "2025-04-20"),
		Mode:          schedule.ModeRegenerate,
		DefaultAmount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.CreatedCount())

	after, _ := mem.ListInstances(ctx, "acct-1")
	require.Len(t, after, 3)
	assert.Equal(t, "2025-02-20", after[0].DueDate.DateKey())
	for _, inst := range after {
		assert.False(t, inst.Paid)
	}
}

func TestReconcile_Regenerate_RollsBackOnFailure(t *testing.T) {
	// A create failure mid-regenerate must leave the prior instance set
	// intact, not a half-deleted one.
	mem := memstore.NewTxMemory()
	ctx := context.Background()

	seed := &schedule.Reconciler{Store: mem}
	_, err := seed.Reconcile(ctx, schedule.Input{
		AccountID:     "acct-1",
		DueDates:      points("2025-02-15", "2025-03-15"),
		Mode:          schedule.ModeSkipExisting,
		DefaultAmount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	flaky := &flakyTxStore{TxMemory: mem, failAfter: 2}
	rc := &schedule.Reconciler{Store: flaky}
	_, err = rc.Reconcile(ctx, schedule.Input{
		AccountID:     "acct-1",
		DueDates:      points("2025-02-20", "2025-03-20", "2025-04-20"),
		Mode:          schedule.ModeRegenerate,
		DefaultAmount: decimal.NewFromInt(10),
	})
	require.Error(t, err)

	after, _ := mem.ListInstances(ctx, "acct-1")
	require.Len(t, after, 2)
	assert.Equal(t, "2025-02-15", after[0].DueDate.DateKey())
	assert.Equal(t, "2025-03-15", after[1].DueDate.DateKey())
}

func TestReconcile_Regenerate_RequiresTransactionalStore(t *testing.T) {
	rc := &schedule.Reconciler{Store: memstore.NewMemory()}

	_, err := rc.Reconcile(context.Background(), schedule.Input{
		AccountID: "acct-1",
		DueDates:  points("2025-02-15"),
		Mode:      schedule.ModeRegenerate,
	})

	assert.ErrorIs(t, err, schedule.ErrStoreRequired)
}

func TestReconcile_UnknownMode(t *testing.T) {
	rc := &schedule.Reconciler{Store: memstore.NewMemory()}

	_, err := rc.Reconcile(context.Background(), schedule.Input{
		AccountID: "acct-1",
		Mode:      schedule.Mode("upsert"),
	})

	assert.Error(t, err)
}

// flakyTxStore fails creates once a threshold is reached, to exercise
// transactional rollback.
type flakyTxStore struct {
	*memstore.TxMemory
	failAfter int
	created   int
}

var errInjected = errors.New("injected store failure")

func (f *flakyTxStore) WithTx(ctx context.Context, fn func(schedule.InstanceStore) error) error {
	return f.TxMemory.WithTx(ctx, func(s schedule.InstanceStore) error {
		return fn(&flakyView{inner: s, owner: f})
	})
}

type flakyView struct {
	inner schedule.InstanceStore
	owner *flakyTxStore
}

func (v *flakyView) CreateInstance(ctx context.Context, inst schedule.Instance) error {
	if v.owner.created >= v.owner.failAfter {
		return errInjected
	}
	v.owner.created++
	return v.inner.CreateInstance(ctx, inst)
}

func (v *flakyView) ListInstances(ctx context.Context, accountID string) ([]schedule.Instance, error) {
	return v.inner.ListInstances(ctx, accountID)
}

func (v *flakyView) InstanceExists(ctx context.Context, accountID string, due schedule.TimePoint) (bool, error) {
	return v.inner.InstanceExists(ctx, accountID, due)
}

func (v *flakyView) DeleteInstances(ctx context.Context, accountID string) error {
	return v.inner.DeleteInstances(ctx, accountID)
}
