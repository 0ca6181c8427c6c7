// Package ledger implements the credit-ledger consumption core: an
// ordered-grant drawdown engine with debt, settlement, subscription block
// grants, and per-principal serialization.
//
// # Architecture
//
// The package splits into a pure algorithm layer and a storage layer:
//
//	Service ──▶ Store (postgres / sqlite / memory)
//	   │
//	   ├─▶ consumeFromOrderedGrants (pure)
//	   └─▶ event.Emitter / SyncFailureSink
//
// Every mutation runs inside Store.WithAdvisoryLockTransaction keyed by the
// account ("user:<id>" or "org:<id>"), so concurrent operations on the same
// account serialize while different accounts proceed in parallel. The
// Postgres store takes pg_advisory_xact_lock inside the transaction; the
// SQLite and memory stores use a process-global KeyedMutex.
//
// # Main Types
//
//   - CreditGrant: one grant row. Principal is the amount originally
//     granted; Balance counts down from it and may go negative (debt).
//   - Account: the owning user or organization.
//   - Service: the operations: ConsumeCredits, GrantCredit,
//     CalculateUsageAndBalance, EnsureActiveBlockGrant, MigrateOnSubscribe,
//     RevokeGrantByOperationID, CheckRateLimit.
//   - Store / Tx: the storage contract implemented by the postgres and
//     sqlite subpackages and by MemoryStore.
//
// # Consumption Order
//
// Grants are drawn down in consumption order: priority ascending, expiry
// ascending with no-expiry last, createdAt ascending. The final grant in
// that order is the debt anchor: it is always fetched even at zero balance,
// and any shortfall after the positive balances are spent is charged to it
// as negative balance.
//
// # Thread Safety
//
// Service is safe for concurrent use. Store implementations serialize
// same-account mutations through the advisory lock; read paths run
// unlocked.
package ledger
