package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/event"
	"github.com/levelcode/teamfabric/internal/logging"
)

const (
	defaultMaxRetries = 3
	retryBaseDelay    = 50 * time.Millisecond
)

// Service runs the ledger operations over a Store. All mutations execute
// inside the account's advisory-locked transaction and retry transient
// storage failures with exponential backoff.
type Service struct {
	store      Store
	emitter    *event.Emitter
	logger     *logging.Logger
	failures   SyncFailureSink
	maxRetries int
}

// Option configures a Service.
type Option func(*Service)

// WithEmitter sets the event emitter for grant/consumption events.
func WithEmitter(em *event.Emitter) Option {
	return func(s *Service) {
		if em != nil {
			s.emitter = em
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSyncFailureSink sets where terminally failed operations are recorded.
func WithSyncFailureSink(sink SyncFailureSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.failures = sink
		}
	}
}

// WithMaxRetries overrides the transient-failure retry budget.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// NewService creates a Service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		emitter:    event.NewEmitter(nil, nil),
		logger:     logging.NopLogger(),
		failures:   NopSyncFailureSink{},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConsumeCredits draws amount credits from the account's grants in
// consumption order: debt is repaid first, then positive balances, and any
// shortfall becomes debt on the last grant. The full amount is therefore
// consumed whenever the account has at least one active grant; an account
// with none fails with ErrNoActiveGrants.
func (s *Service) ConsumeCredits(ctx context.Context, acct Account, amount int64) (ConsumeResult, error) {
	if err := acct.Validate(); err != nil {
		return ConsumeResult{}, err
	}
	if amount <= 0 {
		return ConsumeResult{}, errors.NewValidationError("Consume amount must be positive.")
	}

	var res ConsumeResult
	err := s.withRetry(ctx, "consume:"+acct.LockKey(), func() error {
		return s.store.WithAdvisoryLockTransaction(ctx, acct.LockKey(), func(tx Tx) error {
			grants, err := tx.ConsumptionGrants(ctx, acct, time.Now())
			if err != nil {
				return err
			}
			if len(grants) == 0 {
				return errors.NewLedgerError("consume credits", errors.ErrNoActiveGrants).
					WithPrincipal(acct.LockKey())
			}

			before := make([]int64, len(grants))
			for i, g := range grants {
				before[i] = g.Balance
			}
			res = consumeFromOrderedGrants(amount, grants)
			for i := range grants {
				if grants[i].Balance == before[i] {
					continue
				}
				if err := tx.SetBalance(ctx, grants[i].ID, grants[i].Balance); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return ConsumeResult{}, err
	}

	s.emitter.EmitCreditConsumed(acct.LockKey(), res.Consumed, res.FromPurchased)
	s.logger.Debug("credits consumed",
		"principal", acct.LockKey(),
		"consumed", res.Consumed,
		"from_purchased", res.FromPurchased)
	return res, nil
}

// GrantCredit issues amount credits of the given type. Outstanding debt is
// cleared first and reduces the issued amount; whatever remains is inserted
// as a new grant. A duplicate operation id is a silent no-op, so webhook
// replays cannot double-grant. The grant event is emitted only when a row
// was actually inserted. Returns the inserted grant, or nil when debt
// swallowed the full amount or the operation id already existed.
func (s *Service) GrantCredit(ctx context.Context, acct Account, typ GrantType, amount int64, expiresAt *time.Time, operationID string) (*CreditGrant, error) {
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	if !typ.IsValid() {
		return nil, errors.NewValidationError(fmt.Sprintf("Invalid grant type %q.", typ))
	}
	if amount <= 0 {
		return nil, errors.NewValidationError("Grant amount must be positive.")
	}
	if operationID == "" {
		return nil, errors.NewValidationError("Grant operation id is required.")
	}

	var inserted *CreditGrant
	err := s.withRetry(ctx, operationID, func() error {
		inserted = nil
		return s.store.WithAdvisoryLockTransaction(ctx, acct.LockKey(), func(tx Tx) error {
			now := time.Now()
			grants, err := tx.ActiveGrants(ctx, acct, now)
			if err != nil {
				return err
			}

			remaining := amount
			for _, g := range grants {
				if g.Balance >= 0 {
					continue
				}
				remaining += g.Balance
				if err := tx.SetBalance(ctx, g.ID, 0); err != nil {
					return err
				}
			}
			if remaining <= 0 {
				return nil
			}

			g := CreditGrant{
				ID:          newGrantID(),
				OperationID: operationID,
				UserID:      acct.UserID,
				OrgID:       acct.OrgID,
				Type:        typ,
				Principal:   remaining,
				Balance:     remaining,
				Priority:    DefaultPriority(typ),
				ExpiresAt:   expiresAt,
				CreatedAt:   now,
			}
			ok, err := tx.InsertGrant(ctx, g)
			if err != nil {
				return err
			}
			if ok {
				inserted = &g
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if inserted != nil {
		s.emitter.EmitCreditGrant(acct.LockKey(), inserted.OperationID, inserted.Type.String(), inserted.Principal)
		s.logger.Info("credit granted",
			"principal", acct.LockKey(),
			"operation", inserted.OperationID,
			"type", inserted.Type.String(),
			"amount", inserted.Principal)
	}
	return inserted, nil
}

// CalculateUsageAndBalance walks the account's active grants once and
// returns the settled balance picture. Settlement is purely in-memory:
// outstanding debt offsets positive balances in the report without touching
// storage, so at most one of TotalPositive and TotalDebt is nonzero.
// UsageThisCycle sums consumption over grants created since cycleStart.
func (s *Service) CalculateUsageAndBalance(ctx context.Context, acct Account, cycleStart time.Time) (*UsageBalance, error) {
	if err := acct.Validate(); err != nil {
		return nil, err
	}

	var ub *UsageBalance
	err := s.withRetry(ctx, "balance:"+acct.LockKey(), func() error {
		grants, err := s.store.ActiveGrants(ctx, acct, time.Now())
		if err != nil {
			return err
		}

		ub = &UsageBalance{ByType: make(map[GrantType]int64)}
		for _, g := range grants {
			switch {
			case g.Balance > 0:
				ub.TotalPositive += g.Balance
				ub.ByType[g.Type] += g.Balance
			case g.Balance < 0:
				ub.TotalDebt += -g.Balance
			}
			if !g.CreatedAt.Before(cycleStart) {
				ub.UsageThisCycle += g.Used()
			}
		}

		settled := min(ub.TotalDebt, ub.TotalPositive)
		ub.TotalPositive -= settled
		ub.TotalDebt -= settled
		ub.NetBalance = ub.TotalPositive - ub.TotalDebt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ub, nil
}

// EnsureActiveBlockGrant returns the account's active subscription block,
// issuing a fresh one when none with positive balance exists. A new block
// holds min(creditsPerBlock, weekly remaining) and expires after the block
// duration. When the weekly window's usage already meets the limit the call
// fails with ErrWeeklyLimitReached and no block is issued.
func (s *Service) EnsureActiveBlockGrant(ctx context.Context, acct Account, cfg BlockConfig) (*CreditGrant, error) {
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		block  *CreditGrant
		issued bool
	)
	err := s.withRetry(ctx, "block:"+acct.LockKey(), func() error {
		block, issued = nil, false
		return s.store.WithAdvisoryLockTransaction(ctx, acct.LockKey(), func(tx Tx) error {
			now := time.Now()
			grants, err := tx.ActiveGrants(ctx, acct, now)
			if err != nil {
				return err
			}
			for i := range grants {
				if grants[i].IsBlock() && grants[i].Balance > 0 {
					block = &grants[i]
					return nil
				}
			}

			weekStart, weekEnd := weeklyWindow(now, cfg.BillingPeriodStart)
			weekly, err := tx.SubscriptionGrantsCreatedBetween(ctx, acct, weekStart, weekEnd)
			if err != nil {
				return err
			}
			var weeklyUsage int64
			for _, g := range weekly {
				weeklyUsage += g.Used()
			}
			if weeklyUsage >= cfg.WeeklyLimit {
				return errors.NewLedgerError("ensure block grant", errors.ErrWeeklyLimitReached).
					WithPrincipal(acct.LockKey())
			}

			amount := min(cfg.CreditsPerBlock, cfg.WeeklyLimit-weeklyUsage)
			expires := now.Add(cfg.BlockDuration)
			g := CreditGrant{
				ID:          newGrantID(),
				OperationID: NewBlockOperationID(),
				UserID:      acct.UserID,
				OrgID:       acct.OrgID,
				Type:        GrantSubscription,
				Principal:   amount,
				Balance:     amount,
				Priority:    DefaultPriority(GrantSubscription),
				ExpiresAt:   &expires,
				CreatedAt:   now,
			}
			ok, err := tx.InsertGrant(ctx, g)
			if err != nil {
				return err
			}
			if !ok {
				// A fresh uuid cannot collide; treat it as transient.
				return errors.NewLedgerError("insert block grant", nil).
					WithPrincipal(acct.LockKey()).WithOperationID(g.OperationID).WithRetryable(true)
			}
			block, issued = &g, true
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, errors.ErrWeeklyLimitReached) {
			s.emitter.EmitSubscriptionLimit(acct.LockKey(), "weekly_limit")
		}
		return nil, err
	}

	if issued {
		s.emitter.EmitSubscriptionBlock(acct.LockKey(), block.OperationID, block.Principal)
		s.logger.Info("block grant issued",
			"principal", acct.LockKey(),
			"operation", block.OperationID,
			"amount", block.Principal)
	}
	return block, nil
}

// EnsureSubscriberBlock resolves the subscription through the payment
// gateway, derives the tier's block shape from its billing period, and
// ensures an active block grant. Only active subscriptions earn blocks.
func (s *Service) EnsureSubscriberBlock(ctx context.Context, acct Account, gateway PaymentGateway, tier SubscriptionTier, subscriptionID string) (*CreditGrant, error) {
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	if gateway == nil || tier == nil {
		return nil, errors.NewValidationError("A payment gateway and subscription tier are required.")
	}
	if subscriptionID == "" {
		return nil, errors.NewValidationError("Subscription id is required.")
	}

	sub, err := gateway.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, errors.NewLedgerError("retrieve subscription", err).WithPrincipal(acct.LockKey())
	}
	if sub == nil || sub.Status != "active" {
		return nil, errors.NewLedgerError(fmt.Sprintf("subscription %q is not active", subscriptionID), nil).
			WithPrincipal(acct.LockKey())
	}
	return s.EnsureActiveBlockGrant(ctx, acct, tier.BlockConfig(sub.CurrentPeriodStart))
}

// CheckRateLimit reports whether the account may consume subscription
// credits right now. The weekly cap is checked first so
// ErrWeeklyLimitReached dominates ErrBlockExhausted: an exhausted block
// inside an exhausted week reports the week.
func (s *Service) CheckRateLimit(ctx context.Context, acct Account, cfg BlockConfig) error {
	if err := acct.Validate(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return s.withRetry(ctx, "ratelimit:"+acct.LockKey(), func() error {
		now := time.Now()
		weekStart, weekEnd := weeklyWindow(now, cfg.BillingPeriodStart)
		weekly, err := s.store.SubscriptionGrantsCreatedBetween(ctx, acct, weekStart, weekEnd)
		if err != nil {
			return err
		}
		var weeklyUsage int64
		for _, g := range weekly {
			weeklyUsage += g.Used()
		}
		if weeklyUsage >= cfg.WeeklyLimit {
			s.emitter.EmitSubscriptionLimit(acct.LockKey(), "weekly_limit")
			return errors.NewLedgerError("rate limit", errors.ErrWeeklyLimitReached).
				WithPrincipal(acct.LockKey())
		}

		grants, err := s.store.ActiveGrants(ctx, acct, now)
		if err != nil {
			return err
		}
		for _, g := range grants {
			if g.IsBlock() && g.Balance > 0 {
				return nil
			}
		}
		s.emitter.EmitSubscriptionLimit(acct.LockKey(), "block_exhausted")
		return errors.NewLedgerError("rate limit", errors.ErrBlockExhausted).
			WithPrincipal(acct.LockKey())
	})
}

// MigrateOnSubscribe folds the account's expiring credits into the new
// subscription's billing period: every non-subscription grant with positive
// balance and an expiry strictly before periodEnd is zeroed and replaced by
// a single purchase grant of the sum, expiring at periodEnd. The
// replacement's operation id is deterministic per subscription, so a
// duplicate webhook delivery is a no-op. Returns the replacement grant, or
// nil when nothing needed migrating.
func (s *Service) MigrateOnSubscribe(ctx context.Context, acct Account, subscriptionID string, periodEnd time.Time) (*CreditGrant, error) {
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	if subscriptionID == "" {
		return nil, errors.NewValidationError("Subscription id is required.")
	}

	operationID := MigrationOperationID(subscriptionID)
	var replacement *CreditGrant
	err := s.withRetry(ctx, operationID, func() error {
		replacement = nil
		return s.store.WithAdvisoryLockTransaction(ctx, acct.LockKey(), func(tx Tx) error {
			now := time.Now()
			grants, err := tx.ActiveGrants(ctx, acct, now)
			if err != nil {
				return err
			}

			var sum int64
			var migrated []CreditGrant
			for _, g := range grants {
				if g.Type == GrantSubscription || g.Balance <= 0 {
					continue
				}
				if g.ExpiresAt == nil || !g.ExpiresAt.Before(periodEnd) {
					continue
				}
				sum += g.Balance
				migrated = append(migrated, g)
			}
			if sum == 0 {
				return nil
			}

			for _, g := range migrated {
				if err := tx.SetBalance(ctx, g.ID, 0); err != nil {
					return err
				}
			}
			expires := periodEnd
			g := CreditGrant{
				ID:                   newGrantID(),
				OperationID:          operationID,
				UserID:               acct.UserID,
				OrgID:                acct.OrgID,
				Type:                 GrantPurchase,
				Principal:            sum,
				Balance:              sum,
				Priority:             DefaultPriority(GrantPurchase),
				ExpiresAt:            &expires,
				CreatedAt:            now,
				Description:          "migrated on subscribe",
				StripeSubscriptionID: subscriptionID,
			}
			ok, err := tx.InsertGrant(ctx, g)
			if err != nil {
				return err
			}
			if ok {
				replacement = &g
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if replacement != nil {
		s.emitter.EmitSubscriptionMigrated(acct.LockKey(), subscriptionID, replacement.Principal)
		s.logger.Info("grants migrated on subscribe",
			"principal", acct.LockKey(),
			"subscription", subscriptionID,
			"amount", replacement.Principal)
	}
	return replacement, nil
}

// RevokeGrantByOperationID zeroes the grant's remaining balance. A grant
// whose balance is already negative refuses revocation: those credits are
// spent, and zeroing would erase the debt.
func (s *Service) RevokeGrantByOperationID(ctx context.Context, acct Account, operationID string) error {
	if err := acct.Validate(); err != nil {
		return err
	}
	if operationID == "" {
		return errors.NewValidationError("Grant operation id is required.")
	}

	return s.withRetry(ctx, operationID, func() error {
		return s.store.WithAdvisoryLockTransaction(ctx, acct.LockKey(), func(tx Tx) error {
			g, err := tx.GrantByOperationID(ctx, acct, operationID)
			if err != nil {
				return err
			}
			if g == nil {
				return errors.NewLedgerError(fmt.Sprintf("grant %q not found", operationID), nil).
					WithPrincipal(acct.LockKey()).WithOperationID(operationID)
			}
			if g.Balance < 0 {
				return errors.NewLedgerError("revoke grant", errors.ErrNegativeBalance).
					WithPrincipal(acct.LockKey()).WithOperationID(operationID)
			}
			return tx.SetBalance(ctx, g.ID, 0)
		})
	})
}

// withRetry runs op, retrying transient storage failures up to the retry
// budget with exponential backoff (50ms, 100ms, 200ms). Domain errors
// surface immediately. When a transient failure survives every retry the
// operation id is recorded to the sync-failure sink before returning.
func (s *Service) withRetry(ctx context.Context, operationID string, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) {
			return err
		}
		if attempt >= s.maxRetries {
			s.failures.Record(ctx, operationID, err)
			s.logger.Warn("ledger operation failed terminally",
				"operation", operationID,
				"attempts", attempt+1,
				"error", err.Error())
			return err
		}

		delay := retryBaseDelay << attempt
		s.logger.Warn("ledger operation retrying",
			"operation", operationID,
			"attempt", attempt+1,
			"delay", delay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
