package ledger

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
)

// MemoryStore is an in-memory Store. It mirrors the SQL stores' contract
// (per-principal advisory locking, staged writes committed only when the
// transaction function succeeds, duplicate operation ids ignored) and
// exists so service behavior can be tested without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]CreditGrant // by grant id
	byOp   map[string]string      // operation id -> grant id
	locks  *KeyedMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants: make(map[string]CreditGrant),
		byOp:   make(map[string]string),
		locks:  NewKeyedMutex(),
	}
}

// Init is a no-op; there is no schema to create.
func (m *MemoryStore) Init(ctx context.Context) error {
	return nil
}

// ActiveGrants returns the account's unexpired grants, oldest first.
func (m *MemoryStore) ActiveGrants(ctx context.Context, acct Account, now time.Time) ([]CreditGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []CreditGrant
	for _, g := range m.grants {
		if ownedBy(g, acct) && g.Active(now) {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, compareCreated)
	return out, nil
}

// ConsumptionGrants returns the account's active grants with nonzero balance
// in consumption order, plus the final grant in that order even when its
// balance is zero, so shortfalls always have an anchor to land on.
func (m *MemoryStore) ConsumptionGrants(ctx context.Context, acct Account, now time.Time) ([]CreditGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var actives []CreditGrant
	for _, g := range m.grants {
		if ownedBy(g, acct) && g.Active(now) {
			actives = append(actives, g)
		}
	}
	if len(actives) == 0 {
		return nil, nil
	}

	anchor := actives[0]
	for _, g := range actives[1:] {
		if consumptionLess(anchor, g) {
			anchor = g
		}
	}
	out := make([]CreditGrant, 0, len(actives))
	for _, g := range actives {
		if g.Balance != 0 || g.ID == anchor.ID {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, compareConsumption)
	return out, nil
}

// SubscriptionGrantsCreatedBetween returns subscription grants created in
// [from, to), expired or not, oldest first.
func (m *MemoryStore) SubscriptionGrantsCreatedBetween(ctx context.Context, acct Account, from, to time.Time) ([]CreditGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []CreditGrant
	for _, g := range m.grants {
		if !ownedBy(g, acct) || g.Type != GrantSubscription {
			continue
		}
		if g.CreatedAt.Before(from) || !g.CreatedAt.Before(to) {
			continue
		}
		out = append(out, g)
	}
	slices.SortFunc(out, compareCreated)
	return out, nil
}

// GrantByOperationID returns the account's grant with the given operation
// id, or nil when none exists.
func (m *MemoryStore) GrantByOperationID(ctx context.Context, acct Account, operationID string) (*CreditGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byOp[operationID]
	if !ok {
		return nil, nil
	}
	g := m.grants[id]
	if !ownedBy(g, acct) {
		return nil, nil
	}
	return &g, nil
}

// WithAdvisoryLockTransaction serializes on the principal key, then runs fn
// against a staged-write transaction. Writes apply only when fn returns nil;
// reads inside the transaction see committed state, which suffices because
// ledger operations read before they write.
func (m *MemoryStore) WithAdvisoryLockTransaction(ctx context.Context, key string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	tx := &memoryTx{
		store:    m,
		balances: make(map[string]int64),
	}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range tx.inserts {
		m.grants[g.ID] = g
		m.byOp[g.OperationID] = g.ID
	}
	for id, balance := range tx.balances {
		g := m.grants[id]
		g.Balance = balance
		m.grants[id] = g
	}
	return nil
}

// memoryTx stages writes against a MemoryStore until commit.
type memoryTx struct {
	store    *MemoryStore
	balances map[string]int64
	inserts  []CreditGrant
}

var _ Tx = (*memoryTx)(nil)

func (t *memoryTx) ActiveGrants(ctx context.Context, acct Account, now time.Time) ([]CreditGrant, error) {
	return t.store.ActiveGrants(ctx, acct, now)
}

func (t *memoryTx) ConsumptionGrants(ctx context.Context, acct Account, now time.Time) ([]CreditGrant, error) {
	return t.store.ConsumptionGrants(ctx, acct, now)
}

func (t *memoryTx) SubscriptionGrantsCreatedBetween(ctx context.Context, acct Account, from, to time.Time) ([]CreditGrant, error) {
	return t.store.SubscriptionGrantsCreatedBetween(ctx, acct, from, to)
}

func (t *memoryTx) GrantByOperationID(ctx context.Context, acct Account, operationID string) (*CreditGrant, error) {
	return t.store.GrantByOperationID(ctx, acct, operationID)
}

func (t *memoryTx) InsertGrant(ctx context.Context, g CreditGrant) (bool, error) {
	t.store.mu.RLock()
	_, committed := t.store.byOp[g.OperationID]
	t.store.mu.RUnlock()
	if committed {
		return false, nil
	}
	for _, staged := range t.inserts {
		if staged.OperationID == g.OperationID {
			return false, nil
		}
	}
	t.inserts = append(t.inserts, g)
	return true, nil
}

func (t *memoryTx) SetBalance(ctx context.Context, id string, balance int64) error {
	t.store.mu.RLock()
	_, ok := t.store.grants[id]
	t.store.mu.RUnlock()
	if !ok {
		for _, staged := range t.inserts {
			if staged.ID == id {
				ok = true
				break
			}
		}
	}
	if !ok {
		return errors.NewLedgerError("set balance: grant "+id+" not found", nil)
	}
	t.balances[id] = balance
	return nil
}

func ownedBy(g CreditGrant, acct Account) bool {
	if acct.OrgID != "" {
		return g.OrgID == acct.OrgID
	}
	return g.UserID == acct.UserID && g.OrgID == ""
}

func compareCreated(a, b CreditGrant) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func compareConsumption(a, b CreditGrant) int {
	if consumptionLess(a, b) {
		return -1
	}
	if consumptionLess(b, a) {
		return 1
	}
	return 0
}
