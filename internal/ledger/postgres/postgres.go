// Package postgres implements ledger.Store using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor injection.
// The caller creates and closes the pool. Per-principal serialization uses
// pg_advisory_xact_lock, so it holds across every process sharing the
// database, not just this one.
package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
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
			principal BIGINT NOT NULL,
			balance BIGINT NOT NULL,
			priority INTEGER NOT NULL,
			expires_at BIGINT,
			created_at BIGINT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			stripe_subscription_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS credit_grants_user_idx ON credit_grants(user_id)`,
		`CREATE INDEX IF NOT EXISTS credit_grants_org_idx ON credit_grants(org_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

func (s *Store) ActiveGrants(ctx context.Context, acct ledger.Account, now time.Time) ([]ledger.CreditGrant, error) {
	return activeGrants(ctx, s.pool, acct, now)
}

func (s *Store) ConsumptionGrants(ctx context.Context, acct ledger.Account, now time.Time) ([]ledger.CreditGrant, error) {
	return consumptionGrants(ctx, s.pool, acct, now)
}

func (s *Store) SubscriptionGrantsCreatedBetween(ctx context.Context, acct ledger.Account, from, to time.Time) ([]ledger.CreditGrant, error) {
	return subscriptionGrantsCreatedBetween(ctx, s.pool, acct, from, to)
}

func (s *Store) GrantByOperationID(ctx context.Context, acct ledger.Account, operationID string) (*ledger.CreditGrant, error) {
	return grantByOperationID(ctx, s.pool, acct, operationID)
}

// WithAdvisoryLockTransaction begins a transaction, takes
// pg_advisory_xact_lock on the key's hash, and runs fn. The lock releases
// with the transaction. A non-nil fn error rolls back and is returned
// unchanged. Distinct keys may hash together; collisions only
// over-serialize, never under-serialize.
func (s *Store) WithAdvisoryLockTransaction(ctx context.Context, key string, fn func(tx ledger.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return transient("postgres: begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKeyHash(key)); err != nil {
		return transient("postgres: advisory lock", err)
	}
	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return transient("postgres: commit tx", err)
	}
	return nil
}

// storeTx exposes the ledger.Tx surface over a pgx transaction.
type storeTx struct {
	tx pgx.Tx
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
	var expiresMs *int64
	if g.ExpiresAt != nil {
		v := g.ExpiresAt.UnixMilli()
		expiresMs = &v
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO credit_grants
		   (id, operation_id, user_id, org_id, grant_type, principal, balance,
		    priority, expires_at, created_at, description, stripe_subscription_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (operation_id) DO NOTHING`,
		g.ID, g.OperationID, g.UserID, g.OrgID, string(g.Type), g.Principal, g.Balance,
		g.Priority, expiresMs, g.CreatedAt.UnixMilli(), g.Description, g.StripeSubscriptionID)
	if err != nil {
		return false, transient("postgres: insert grant", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *storeTx) SetBalance(ctx context.Context, id string, balance int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE credit_grants SET balance = $2 WHERE id = $1`, id, balance)
	if err != nil {
		return transient("postgres: set balance", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewLedgerError(fmt.Sprintf("set balance: grant %q not found", id), nil)
	}
	return nil
}

// querier is the query surface shared by *pgxpool.Pool and pgx.Tx, so the
// same read paths serve Store and storeTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const grantColumns = `id, operation_id, user_id, org_id, grant_type, principal, balance,
	priority, expires_at, created_at, description, stripe_subscription_id`

// ownerClause returns the WHERE fragment selecting the account's grants as
// $1. Org accounts own every grant carrying their org id; user accounts own
// only their personal (org-less) grants.
func ownerClause(acct ledger.Account) (string, any) {
	if acct.OrgID != "" {
		return "org_id = $1", acct.OrgID
	}
	return "user_id = $1 AND org_id = ''", acct.UserID
}

func activeGrants(ctx context.Context, q querier, acct ledger.Account, now time.Time) ([]ledger.CreditGrant, error) {
	owner, arg := ownerClause(acct)
	rows, err := q.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM credit_grants
		 WHERE %s AND (expires_at IS NULL OR expires_at > $2)
		 ORDER BY created_at ASC, id ASC`,
		grantColumns, owner),
		arg, now.UnixMilli())
	if err != nil {
		return nil, transient("postgres: query active grants", err)
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
	rows, err := q.Query(ctx, fmt.Sprintf(
		`SELECT %[1]s FROM credit_grants
		 WHERE %[2]s AND (expires_at IS NULL OR expires_at > $2) AND balance <> 0
		 UNION
		 SELECT * FROM (
		   SELECT %[1]s FROM credit_grants
		   WHERE %[2]s AND (expires_at IS NULL OR expires_at > $2)
		   ORDER BY priority DESC, expires_at DESC NULLS FIRST, created_at DESC, id DESC
		   LIMIT 1
		 ) AS last_grant
		 ORDER BY priority ASC, expires_at ASC NULLS LAST, created_at ASC, id ASC`,
		grantColumns, owner),
		arg, now.UnixMilli())
	if err != nil {
		return nil, transient("postgres: query consumption grants", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func subscriptionGrantsCreatedBetween(ctx context.Context, q querier, acct ledger.Account, from, to time.Time) ([]ledger.CreditGrant, error) {
	owner, arg := ownerClause(acct)
	rows, err := q.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM credit_grants
		 WHERE %s AND grant_type = 'subscription' AND created_at >= $2 AND created_at < $3
		 ORDER BY created_at ASC, id ASC`,
		grantColumns, owner),
		arg, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, transient("postgres: query subscription grants", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func grantByOperationID(ctx context.Context, q querier, acct ledger.Account, operationID string) (*ledger.CreditGrant, error) {
	owner, arg := ownerClause(acct)
	row := q.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM credit_grants WHERE %s AND operation_id = $2`,
		grantColumns, owner),
		arg, operationID)

	g, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, transient("postgres: query grant by operation id", err)
	}
	return &g, nil
}

func scanGrants(rows pgx.Rows) ([]ledger.CreditGrant, error) {
	var grants []ledger.CreditGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, transient("postgres: scan grant", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("postgres: iterate grants", err)
	}
	return grants, nil
}

func scanGrant(row pgx.Row) (ledger.CreditGrant, error) {
	var (
		g         ledger.CreditGrant
		grantType string
		expiresMs *int64
		createdMs int64
	)
	err := row.Scan(&g.ID, &g.OperationID, &g.UserID, &g.OrgID, &grantType, &g.Principal,
		&g.Balance, &g.Priority, &expiresMs, &createdMs, &g.Description, &g.StripeSubscriptionID)
	if err != nil {
		return ledger.CreditGrant{}, err
	}
	g.Type = ledger.GrantType(grantType)
	if expiresMs != nil {
		t := time.UnixMilli(*expiresMs).UTC()
		g.ExpiresAt = &t
	}
	g.CreatedAt = time.UnixMilli(createdMs).UTC()
	return g, nil
}

// transient marks a driver failure as retryable for the service layer.
func transient(op string, err error) error {
	return errors.NewLedgerError(op, err).WithRetryable(true)
}

// lockKeyHash folds a principal key into the signed 64-bit space
// pg_advisory_xact_lock accepts.
func lockKeyHash(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
