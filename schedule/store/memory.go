// Package store provides in-memory implementations of the schedule
// persistence interfaces, for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/bill-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	accounts  map[string]schedule.Account
	instances map[string][]schedule.Instance // keyed by account ID, sorted by due date
	audit     []schedule.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[string]schedule.Account),
		instances: make(map[string][]schedule.Instance),
	}
}

// -----------------------------------------------------------------------------
// InstanceStore
// -----------------------------------------------------------------------------

func (m *Memory) CreateInstance(_ context.Context, inst schedule.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(inst)
}

func (m *Memory) createLocked(inst schedule.Instance) error {
	insts := m.instances[inst.AccountID]
	key := inst.DueDate.DateKey()
	for _, existing := range insts {
		if existing.DueDate.DateKey() == key {
			return &schedule.DuplicateInstanceError{AccountID: inst.AccountID, DueDate: inst.DueDate}
		}
	}

	// Insert keeping due-date order.
	i := sort.Search(len(insts), func(i int) bool {
		return insts[i].DueDate.After(inst.DueDate)
	})
	insts = append(insts, schedule.Instance{})
	copy(insts[i+1:], insts[i:])
	insts[i] = inst
	m.instances[inst.AccountID] = insts
	return nil
}

func (m *Memory) ListInstances(_ context.Context, accountID string) ([]schedule.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]schedule.Instance, len(m.instances[accountID]))
	copy(result, m.instances[accountID])
	return result, nil
}

func (m *Memory) InstanceExists(_ context.Context, accountID string, due schedule.TimePoint) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := due.DateKey()
	for _, inst := range m.instances[accountID] {
		if inst.DueDate.DateKey() == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) DeleteInstances(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, accountID)
	return nil
}

// UpdateInstance replaces a stored instance; used to simulate user edits.
func (m *Memory) UpdateInstance(_ context.Context, inst schedule.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	insts := m.instances[inst.AccountID]
	for i, existing := range insts {
		if existing.ID == inst.ID {
			insts[i] = inst
			return nil
		}
	}
	return schedule.ErrInstanceNotFound
}

// -----------------------------------------------------------------------------
// AccountSource
// -----------------------------------------------------------------------------

func (m *Memory) SaveAccount(_ context.Context, account schedule.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id string) (schedule.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok {
		return schedule.Account{}, schedule.ErrAccountNotFound
	}
	return account, nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]schedule.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]schedule.Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// DeleteAccount removes an account and all of its instances.
func (m *Memory) DeleteAccount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	delete(m.instances, id)
	return nil
}

// -----------------------------------------------------------------------------
// AuditLog
// -----------------------------------------------------------------------------

func (m *Memory) LogAction(_ context.Context, entry schedule.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) AuditEntries() []schedule.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]schedule.AuditEntry, len(m.audit))
	copy(result, m.audit)
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against a transactional view. For the memory store this
// is simulated with a snapshot, restored if fn fails.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(schedule.InstanceStore) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshotLocked()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restoreLocked(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshotLocked() map[string][]schedule.Instance {
	copied := make(map[string][]schedule.Instance, len(tm.instances))
	for k, v := range tm.instances {
		copied[k] = append([]schedule.Instance{}, v...)
	}
	return copied
}

func (tm *TxMemory) restoreLocked(snapshot map[string][]schedule.Instance) {
	tm.instances = snapshot
}

type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) CreateInstance(_ context.Context, inst schedule.Instance) error {
	return tv.parent.createLocked(inst)
}

func (tv *txMemoryView) ListInstances(_ context.Context, accountID string) ([]schedule.Instance, error) {
	return tv.parent.instances[accountID], nil
}

func (tv *txMemoryView) InstanceExists(_ context.Context, accountID string, due schedule.TimePoint) (bool, error) {
	key := due.DateKey()
	for _, inst := range tv.parent.instances[accountID] {
		if inst.DueDate.DateKey() == key {
			return true, nil
		}
	}
	return false, nil
}

func (tv *txMemoryView) DeleteInstances(_ context.Context, accountID string) error {
	delete(tv.parent.instances, accountID)
	return nil
}
