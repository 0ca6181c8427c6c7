package ledger

import (
	"context"
	"sync"
	"time"
)

// Reader is the query surface shared by a store and its transactions.
// Expiry filtering is evaluated against the caller-supplied now so reads
// and the pure algorithm agree on what "active" means.
type Reader interface {
	// ActiveGrants returns the account's unexpired grants, oldest first.
	ActiveGrants(ctx context.Context, acct Account, now time.Time) ([]CreditGrant, error)

	// ConsumptionGrants returns the account's unexpired grants with nonzero
	// balance in consumption order, plus the debt anchor (the last grant
	// under that order) even when its balance is zero. The anchor is the
	// final element.
	ConsumptionGrants(ctx context.Context, acct Account, now time.Time) ([]CreditGrant, error)

	// SubscriptionGrantsCreatedBetween returns the account's
	// subscription-typed grants with createdAt in [from, to), expired or
	// not, oldest first.
	SubscriptionGrantsCreatedBetween(ctx context.Context, acct Account, from, to time.Time) ([]CreditGrant, error)

	// GrantByOperationID returns the account's grant with the given
	// operation id, or nil when none exists.
	GrantByOperationID(ctx context.Context, acct Account, operationID string) (*CreditGrant, error)
}

// Tx is the mutation surface available inside an advisory-locked
// transaction. Writes become visible to other readers only on commit.
type Tx interface {
	Reader

	// InsertGrant writes a new grant. A duplicate operation id is a silent
	// no-op: inserted reports whether a row was actually written.
	InsertGrant(ctx context.Context, g CreditGrant) (inserted bool, err error)

	// SetBalance overwrites a grant's balance by row id.
	SetBalance(ctx context.Context, id string, balance int64) error
}

// Store is the grant storage contract. Implementations: the postgres and
// sqlite subpackages, and MemoryStore for tests.
type Store interface {
	Reader

	// Init creates the schema. Safe to call repeatedly.
	Init(ctx context.Context) error

	// WithAdvisoryLockTransaction runs fn inside a transaction that holds
	// the advisory lock for key ("user:<id>" or "org:<id>") for the
	// transaction's whole extent. Same-key calls serialize across
	// goroutines and, where the backend supports it, across processes;
	// different keys proceed in parallel. A non-nil error from fn rolls the
	// transaction back and is returned unchanged.
	WithAdvisoryLockTransaction(ctx context.Context, key string, fn func(tx Tx) error) error
}

// SyncFailureSink records operations that failed terminally after retries,
// so billing state can be reconciled out of band.
type SyncFailureSink interface {
	Record(ctx context.Context, operationID string, err error)
}

// NopSyncFailureSink discards every record.
type NopSyncFailureSink struct{}

func (NopSyncFailureSink) Record(context.Context, string, error) {}

// SyncFailure is one recorded terminal failure.
type SyncFailure struct {
	OperationID string
	Err         error
}

// MemorySyncFailureSink collects failures in memory for tests.
type MemorySyncFailureSink struct {
	mu       sync.Mutex
	failures []SyncFailure
}

// NewMemorySyncFailureSink returns an empty sink.
func NewMemorySyncFailureSink() *MemorySyncFailureSink {
	return &MemorySyncFailureSink{}
}

// Record appends the failure.
func (s *MemorySyncFailureSink) Record(_ context.Context, operationID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, SyncFailure{OperationID: operationID, Err: err})
}

// Failures returns a copy of everything recorded so far.
func (s *MemorySyncFailureSink) Failures() []SyncFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SyncFailure(nil), s.failures...)
}

// KeyedMutex is a process-global advisory lock over string keys. Backends
// without native advisory locks (sqlite, memory) use it to satisfy the
// same-key serialization contract within the process.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use. Mutexes are
// never discarded; the key space (accounts) is small and long-lived.
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
}

// Unlock releases the mutex for key.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	m := k.locks[key]
	k.mu.Unlock()
	if m != nil {
		m.Unlock()
	}
}
