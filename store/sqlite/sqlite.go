/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements schedule.InstanceStore, schedule.TxInstanceStore,
  schedule.AccountSource and schedule.AuditLog on a local SQLite file.

KEY TABLES:
  accounts:          Recurring obligations, rule stored as JSON config
  payment_instances: One row per due obligation, user-editable
  audit_log:         Write-only record of bulk generate/regenerate operations

UNIQUENESS:
  idx_unique_account_due enforces at most one instance per (account_id,
  due_date). A violation surfaces as schedule.DuplicateInstanceError, which
  makes skip-existing reconciliation retries safe.

CASCADE:
  payment_instances has ON DELETE CASCADE on account_id; deleting an account
  removes its whole schedule. Foreign keys are switched on at open.

DATES:
  Due dates are stored as YYYY-MM-DD text (schedule.TimePoint.DateKey), the
  only wire format for calendar dates. Timestamps (paid_at, created_at) are
  RFC3339.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  single writer, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/bills.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - schedule/store.go: interface definitions
  - schedule/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/bill-engine/factory"
	"github.com/warp/bill-engine/schedule"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		rule_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payment_instances (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		due_date TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		paid INTEGER NOT NULL DEFAULT 0,
		paid_at TEXT,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one instance per account per due date
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_account_due
		ON payment_instances(account_id, due_date);

	CREATE INDEX IF NOT EXISTS idx_instances_account
		ON payment_instances(account_id, due_date);
	CREATE INDEX IF NOT EXISTS idx_instances_paid
		ON payment_instances(paid);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		action TEXT NOT NULL,
		subject_table TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_subject
		ON audit_log(subject_table, subject_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// INSTANCE STORE (schedule.InstanceStore interface)
// =============================================================================

// CreateInstance persists a payment instance.
func (s *Store) CreateInstance(ctx context.Context, inst schedule.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createInstance(ctx, s.db, inst)
}

func (s *Store) createInstance(ctx context.Context, db execer, inst schedule.Instance) error {
	query := `
		INSERT INTO payment_instances
		(id, account_id, due_date, amount, paid, paid_at, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, query,
		inst.ID,
		inst.AccountID,
		inst.DueDate.DateKey(),
		inst.Amount.String(),
		boolToInt(inst.Paid),
		nullTime(inst.PaidAt),
		inst.Note,
		now,
		now,
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return &schedule.DuplicateInstanceError{AccountID: inst.AccountID, DueDate: inst.DueDate}
		}
		return fmt.Errorf("failed to create instance: %w", err)
	}

	return nil
}

// ListInstances returns all instances for an account, ordered by due date.
func (s *Store) ListInstances(ctx context.Context, accountID string) ([]schedule.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryInstances(ctx, s.db, accountID)
}

// InstanceExists checks the (account, due date) pair.
func (s *Store) InstanceExists(ctx context.Context, accountID string, due schedule.TimePoint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payment_instances WHERE account_id = ? AND due_date = ?",
		accountID, due.DateKey(),
	).Scan(&count)

	return count > 0, err
}

// DeleteInstances removes every instance for an account.
func (s *Store) DeleteInstances(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return deleteInstances(ctx, s.db, accountID)
}

func deleteInstances(ctx context.Context, db execer, accountID string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM payment_instances WHERE account_id = ?", accountID)
	if err != nil {
		return fmt.Errorf("failed to delete instances: %w", err)
	}
	return nil
}

// GetInstance returns a single instance by ID.
func (s *Store) GetInstance(ctx context.Context, id string) (schedule.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, due_date, amount, paid, paid_at, note
		FROM payment_instances
		WHERE id = ?`, id)
	if err != nil {
		return schedule.Instance{}, fmt.Errorf("failed to query instance: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return schedule.Instance{}, err
		}
		return schedule.Instance{}, schedule.ErrInstanceNotFound
	}
	return scanInstance(rows)
}

// UpdateInstance applies a user edit (amount, paid state, note).
// The reconciler never calls this; only boundary handlers do.
func (s *Store) UpdateInstance(ctx context.Context, inst schedule.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE payment_instances
		SET amount = ?, paid = ?, paid_at = ?, note = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		inst.Amount.String(),
		boolToInt(inst.Paid),
		nullTime(inst.PaidAt),
		inst.Note,
		time.Now().UTC().Format(time.RFC3339),
		inst.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.ErrInstanceNotFound
	}
	return nil
}

// DeleteInstance removes a single instance by ID.
func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM payment_instances WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.ErrInstanceNotFound
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryInstances(ctx context.Context, db querier, accountID string) ([]schedule.Instance, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, account_id, due_date, amount, paid, paid_at, note
		FROM payment_instances
		WHERE account_id = ?
		ORDER BY due_date ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []schedule.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func scanInstance(rows *sql.Rows) (schedule.Instance, error) {
	var (
		inst    schedule.Instance
		dueDate string
		amount  string
		paid    int
		paidAt  sql.NullString
	)

	err := rows.Scan(&inst.ID, &inst.AccountID, &dueDate, &amount, &paid, &paidAt, &inst.Note)
	if err != nil {
		return inst, fmt.Errorf("failed to scan instance: %w", err)
	}

	inst.DueDate, err = schedule.ParseDate(dueDate)
	if err != nil {
		return inst, err
	}
	inst.Amount = mustDecimal(amount)
	inst.Paid = paid != 0
	if paidAt.Valid {
		if t, err := time.Parse(time.RFC3339, paidAt.String); err == nil {
			inst.PaidAt = &t
		}
	}

	return inst, nil
}

// =============================================================================
// TRANSACTIONAL STORE (schedule.TxInstanceStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(schedule.InstanceStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) CreateInstance(ctx context.Context, inst schedule.Instance) error {
	return ts.parent.createInstance(ctx, ts.tx, inst)
}

func (ts *txStore) DeleteInstances(ctx context.Context, accountID string) error {
	return deleteInstances(ctx, ts.tx, accountID)
}

func (ts *txStore) ListInstances(ctx context.Context, accountID string) ([]schedule.Instance, error) {
	return queryInstances(ctx, ts.tx, accountID)
}

func (ts *txStore) InstanceExists(ctx context.Context, accountID string, due schedule.TimePoint) (bool, error) {
	var count int
	err := ts.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payment_instances WHERE account_id = ? AND due_date = ?",
		accountID, due.DateKey(),
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// ACCOUNT STORE (schedule.AccountSource interface)
// =============================================================================

// SaveAccount inserts or updates an account. The rule is stored as JSON.
func (s *Store) SaveAccount(ctx context.Context, account schedule.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ruleJSON, err := factory.Serialize(account.Rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (id, name, amount, rule_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			amount = excluded.amount,
			rule_json = excluded.rule_json,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, query,
		account.ID, account.Name, account.Amount.String(), ruleJSON, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// GetAccount returns an account with its parsed rule.
func (s *Store) GetAccount(ctx context.Context, id string) (schedule.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, amount, rule_json FROM accounts WHERE id = ?", id)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return schedule.Account{}, schedule.ErrAccountNotFound
	}
	return account, err
}

// ListAccounts returns all accounts.
func (s *Store) ListAccounts(ctx context.Context) ([]schedule.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, amount, rule_json FROM accounts ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []schedule.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account; instances cascade.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.ErrAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (schedule.Account, error) {
	var (
		account  schedule.Account
		amount   string
		ruleJSON string
	)

	if err := row.Scan(&account.ID, &account.Name, &amount, &ruleJSON); err != nil {
		if err == sql.ErrNoRows {
			return account, err
		}
		return account, fmt.Errorf("failed to scan account: %w", err)
	}

	account.Amount = mustDecimal(amount)
	rule, err := factory.ParseRule(ruleJSON)
	if err != nil {
		return account, fmt.Errorf("stored rule for account %s is invalid: %w", account.ID, err)
	}
	account.Rule = rule
	return account, nil
}

// =============================================================================
// AUDIT LOG (schedule.AuditLog interface)
// =============================================================================

// LogAction appends an audit entry.
func (s *Store) LogAction(ctx context.Context, entry schedule.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO audit_log (id, at, action, subject_table, subject_id, details)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.At.UTC().Format(time.RFC3339),
		entry.Action,
		entry.SubjectTable,
		entry.SubjectID,
		entry.Details,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns the most recent entries, newest first.
func (s *Store) ListAuditEntries(ctx context.Context, limit int) ([]schedule.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, action, subject_table, subject_id, details
		FROM audit_log
		ORDER BY at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []schedule.AuditEntry
	for rows.Next() {
		var (
			entry schedule.AuditEntry
			at    string
		)
		if err := rows.Scan(&entry.ID, &at, &entry.Action, &entry.SubjectTable, &entry.SubjectID, &entry.Details); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.At, _ = time.Parse(time.RFC3339, at)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Helper functions

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
