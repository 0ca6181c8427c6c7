// Package sqlite implements ledger.Store using pure-Go SQLite.
// Zero CGO required.
//
// Unlike the postgres store, advisory locking here is a process-global
// keyed mutex: same-principal operations serialize within this process
// only. Single-process deployments (the normal fabric setup) get the same
// guarantees; multi-process deployments need the postgres store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/ledger"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store implements ledger.Store backed by a local SQLite file.
type Store struct {
	db    *sql.DB
	locks *ledger.KeyedMutex
}

var _ ledger.Store = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db, locks: ledger.NewKeyedMutex()}
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the credit_grants table and its indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS credit_grants (
			id TEXT PRIMARY KEY,
			operation_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			org_id TEXT NOT NULL DEFAULT '',
			grant_type TEXT NOT NULL,
			principal INTEGER NOT NULL,
			balance INTEGER NOT NULL,
			priority INTEGER NOT NULL,
			expires_at INTEGER,
			created_at INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			stripe_subscription_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS credit_grants_user_idx ON credit_grants(user_id)`,
		`CREATE INDEX IF NOT EXISTS credit_grants_org_idx ON credit_grants(org_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: init: %w", err)
		}
	}
	return nil
}

func (s *Store) ActiveGrants(ctx context.Context, acct ledger.Account, now time.Time) ([]ledger.CreditGrant, error) {
	return activeGrants(ctx, s.db, acct, now)
}

func (s *Store) ConsumptionGrants(ctx context.Context, acct ledger.Account, now time.Time) ([]ledger.CreditGrant, error) {
	return consumptionGrants(ctx, s.db, acct, now)
}

func (s *Store) SubscriptionGrantsCreatedBetween(ctx context.Context, acct ledger.Account, from, to time.Time) ([]ledger.CreditGrant, error) {
	return subscriptionGrantsCreatedBetween(ctx, s.db, acct, from, to)
}

func (s *Store) GrantByOperationID(ctx context.Context, acct ledger.Account, operationID string) (*ledger.CreditGrant, error) {
	return grantByOperationID(ctx, s.db, acct, operationID)
}

// WithAdvisoryLockTransaction serializes on the principal key, then runs fn
// inside a transaction on the store's single connection. A non-nil fn error
// rolls back and is returned unchanged.
func (s *Store) WithAdvisoryLockTransaction(ctx context.Context, key string, fn func(tx ledger.Tx) error) error {
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("sqlite: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return transient("sqlite: commit tx", err)
	}
	return nil
}

// storeTx exposes the ledger.Tx surface over a database/sql transaction.
type storeTx struct {
	tx *sql.Tx
}

var _ ledger.Tx = (*storeTx)(nil)

func (t *storeTx) ActiveGrants(ctx context.Context, acct ledger.Account, now time.Time) ([]ledger.CreditGrant, error) {
	return activeGrants(ctx, t.tx, acct, now)
}

func (t *storeTx) ConsumptionGrants(ctx context.Context, acct ledger.Account, now time.Time) ([]ledger.CreditGrant, error) {
	return consumptionGrants(ctx, t.tx, acct, now)
}

func (t *storeTx) SubscriptionGrantsCreatedBetween(ctx context.Context, acct ledger.Account, from, to time.Time) ([]ledger.CreditGrant, error) {
	return subscriptionGrantsCreatedBetween(ctx, t.tx, acct, from, to)
}

func (t *storeTx) GrantByOperationID(ctx context.Context, acct ledger.Account, operationID string) (*ledger.CreditGrant, error) {
	return grantByOperationID(ctx, t.tx, acct, operationID)
}

func (t *storeTx) InsertGrant(ctx context.Context, g ledger.CreditGrant) (bool, error) {
	var expiresMs sql.NullInt64
	if g.ExpiresAt != nil {
		expiresMs = sql.NullInt64{Int64: g.ExpiresAt.UnixMilli(), Valid: true}
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO credit_grants
		   (id, operation_id, user_id, org_id, grant_type, principal, balance,
		    priority, expires_at, created_at, description, stripe_subscription_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.OperationID, g.UserID, g.OrgID, string(g.Type), g.Principal, g.Balance,
		g.Priority, expiresMs, g.CreatedAt.UnixMilli(), g.Description, g.StripeSubscriptionID)
	if err != nil {
		return false, transient("sqlite: insert grant", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, transient("sqlite: insert grant", err)
	}
	return n > 0, nil
}

func (t *storeTx) SetBalance(ctx context.Context, id string, balance int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE credit_grants SET balance = ? WHERE id = ?`, balance, id)
	if err != nil {
		return transient("sqlite: set balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return transient("sqlite: set balance", err)
	}
	if n == 0 {
		return errors.NewLedgerError(fmt.Sprintf("set balance: grant %q not found", id), nil)
	}
	return nil
}

// querier is the query surface shared by *sql.DB and *sql.Tx, so the same
// read paths serve Store and storeTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const grantColumns = `id, operation_id, user_id, org_id, grant_type, principal, balance,
	priority, expires_at, created_at, description, stripe_subscription_id`

// ownerClause returns the WHERE fragment selecting the account's grants.
// Org accounts own every grant carrying their org id; user accounts own
// only their personal (org-less) grants.
func ownerClause(acct ledger.Account) (string, any) {
	if acct.OrgID != "" {
		return "org_id = ?", acct.OrgID
	}
	return "user_id = ? AND org_id = ''", acct.UserID
}

func activeGrants(ctx context.Context, q querier, acct ledger.Account, now time.Time) ([]ledger.CreditGrant, error) {
	owner, arg := ownerClause(acct)
	rows, err := q.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM credit_grants
		 WHERE %s AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY created_at ASC, id ASC`,
		grantColumns, owner),
		arg, now.UnixMilli())
	if err != nil {
		return nil, transient("sqlite: query active grants", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

// consumptionGrants returns active grants with nonzero balance in
// consumption order. The UNION's second arm fetches the final grant in that
// order regardless of balance, so a shortfall always has an anchor to become
// debt on; UNION deduplicates it when it already carried a balance.
func consumptionGrants(ctx context.Context, q querier, acct ledger.Account, now time.Time) ([]ledger.CreditGrant, error) {
	owner, arg := ownerClause(acct)
	nowMs := now.UnixMilli()
	rows, err := q.QueryContext(ctx, fmt.Sprintf(
		`SELECT %[1]s FROM credit_grants
		 WHERE %[2]s AND (expires_at IS NULL OR expires_at > ?) AND balance <> 0
		 UNION
		 SELECT * FROM (
		   SELECT %[1]s FROM credit_grants
		   WHERE %[2]s AND (expires_at IS NULL OR expires_at > ?)
		   ORDER BY priority DESC, expires_at DESC NULLS FIRST, created_at DESC, id DESC
		   LIMIT 1
		 )
		 ORDER BY priority ASC, expires_at ASC NULLS LAST, created_at ASC, id ASC`,
		grantColumns, owner),
		arg, nowMs, arg, nowMs)
	if err != nil {
		return nil, transient("sqlite: query consumption grants", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func subscriptionGrantsCreatedBetween(ctx context.Context, q querier, acct ledger.Account, from, to time.Time) ([]ledger.CreditGrant, error) {
	owner, arg := ownerClause(acct)
	rows, err := q.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM credit_grants
		 WHERE %s AND grant_type = 'subscription' AND created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC, id ASC`,
		grantColumns, owner),
		arg, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, transient("sqlite: query subscription grants", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func grantByOperationID(ctx context.Context, q querier, acct ledger.Account, operationID string) (*ledger.CreditGrant, error) {
	owner, arg := ownerClause(acct)
	row := q.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM credit_grants WHERE %s AND operation_id = ?`,
		grantColumns, owner),
		arg, operationID)

	g, err := scanGrant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, transient("sqlite: query grant by operation id", err)
	}
	return &g, nil
}

func scanGrants(rows *sql.Rows) ([]ledger.CreditGrant, error) {
	var grants []ledger.CreditGrant
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, transient("sqlite: scan grant", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("sqlite: iterate grants", err)
	}
	return grants, nil
}

func scanGrant(scan func(dest ...any) error) (ledger.CreditGrant, error) {
	var (
		g         ledger.CreditGrant
		grantType string
		expiresMs sql.NullInt64
		createdMs int64
	)
	err := scan(&g.ID, &g.OperationID, &g.UserID, &g.OrgID, &grantType, &g.Principal,
		&g.Balance, &g.Priority, &expiresMs, &createdMs, &g.Description, &g.StripeSubscriptionID)
	if err != nil {
		return ledger.CreditGrant{}, err
	}
	g.Type = ledger.GrantType(grantType)
	if expiresMs.Valid {
		t := time.UnixMilli(expiresMs.Int64).UTC()
		g.ExpiresAt = &t
	}
	g.CreatedAt = time.UnixMilli(createdMs).UTC()
	return g, nil
}

// transient marks a driver failure as retryable for the service layer.
func transient(op string, err error) error {
	return errors.NewLedgerError(op, err).WithRetryable(true)
}
