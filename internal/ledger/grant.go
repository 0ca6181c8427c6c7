package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/levelcode/teamfabric/internal/errors"
)

// GrantType classifies where a grant's credits came from.
type GrantType string

const (
	GrantFree           GrantType = "free"
	GrantReferralLegacy GrantType = "referral_legacy"
	GrantAd             GrantType = "ad"
	GrantAdmin          GrantType = "admin"
	GrantOrganization   GrantType = "organization"
	GrantPurchase       GrantType = "purchase"
	GrantSubscription   GrantType = "subscription"
)

// IsValid reports whether t is a known grant type.
func (t GrantType) IsValid() bool {
	switch t {
	case GrantFree, GrantReferralLegacy, GrantAd, GrantAdmin,
		GrantOrganization, GrantPurchase, GrantSubscription:
		return true
	}
	return false
}

func (t GrantType) String() string { return string(t) }

// DefaultPriority returns the consumption priority assigned to new grants
// of a type when the caller does not choose one. Lower draws first:
// expiring subscription blocks burn before promotional credits, which burn
// before anything the account paid for outright.
func DefaultPriority(t GrantType) int {
	switch t {
	case GrantSubscription:
		return 10
	case GrantFree, GrantReferralLegacy, GrantAd, GrantAdmin:
		return 20
	case GrantOrganization:
		return 25
	default:
		return 30
	}
}

// Account identifies whose grant pool an operation works on: a user or an
// organization. Organization pools are shared by the org's members; when
// OrgID is set the user id is ignored for grant scoping.
type Account struct {
	UserID string
	OrgID  string
}

// LockKey returns the advisory-lock key serializing this account's
// mutations: "org:<id>" for organization pools, "user:<id>" otherwise.
func (a Account) LockKey() string {
	if a.OrgID != "" {
		return "org:" + a.OrgID
	}
	return "user:" + a.UserID
}

// Validate checks that the account names an owner.
func (a Account) Validate() error {
	if a.UserID == "" && a.OrgID == "" {
		return errors.NewValidationError("Account requires a user id or an org id.")
	}
	return nil
}

// CreditGrant is one grant row. Principal is the amount originally granted;
// Balance counts down from it as credits are consumed and may go negative:
// debt is recorded as negative balance on the account's last grant.
type CreditGrant struct {
	ID                   string
	OperationID          string
	UserID               string
	OrgID                string
	Type                 GrantType
	Principal            int64
	Balance              int64
	Priority             int
	ExpiresAt            *time.Time
	CreatedAt            time.Time
	Description          string
	StripeSubscriptionID string
}

// Active reports whether the grant is consumable at now: expiry unset or in
// the future.
func (g CreditGrant) Active(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// Used returns how much of the grant's original amount has been consumed.
// Debt makes this exceed Principal.
func (g CreditGrant) Used() int64 {
	return g.Principal - g.Balance
}

// IsBlock reports whether the grant is a subscription block grant.
func (g CreditGrant) IsBlock() bool {
	return g.Type == GrantSubscription && strings.HasPrefix(g.OperationID, blockOperationPrefix)
}

const blockOperationPrefix = "block-"

// NewBlockOperationID returns a fresh operation id for a block grant.
func NewBlockOperationID() string {
	return blockOperationPrefix + uuid.NewString()
}

// MigrationOperationID returns the deterministic operation id for a
// subscribe migration, so duplicate webhook deliveries collapse on the
// unique constraint.
func MigrationOperationID(subscriptionID string) string {
	return "subscribe-migrate-" + subscriptionID
}

// newGrantID returns a fresh grant row id.
func newGrantID() string {
	return uuid.NewString()
}

// ConsumeResult reports what a consumption drew down. Consumed equals the
// requested amount whenever the account had any grant to anchor debt on.
type ConsumeResult struct {
	Consumed      int64
	FromPurchased int64
}

// UsageBalance is the settled balance picture for an account.
//
// Settlement is in-memory only: the positive total and the debt total
// offset each other before reporting, so at most one of TotalPositive and
// TotalDebt is nonzero. Storage is never mutated by the calculation.
type UsageBalance struct {
	// TotalPositive is the settled sum of positive balances.
	TotalPositive int64
	// TotalDebt is the settled debt magnitude (>= 0).
	TotalDebt int64
	// NetBalance is TotalPositive - TotalDebt.
	NetBalance int64
	// ByType breaks the unsettled positive balances down per grant type.
	ByType map[GrantType]int64
	// UsageThisCycle sums Used() over grants created since the cycle start.
	UsageThisCycle int64
}

// BlockConfig describes a subscriber's block-grant shape, derived from the
// subscription tier with any per-account overrides already applied.
type BlockConfig struct {
	// CreditsPerBlock is the size of a freshly issued block.
	CreditsPerBlock int64
	// BlockDuration is how long a block stays consumable.
	BlockDuration time.Duration
	// WeeklyLimit caps subscription credits issued per weekly window.
	WeeklyLimit int64
	// BillingPeriodStart anchors the weekly window: windows run in 168-hour
	// UTC steps from this instant, so the boundary keeps the billing period
	// start's UTC day-of-week and never shifts with daylight saving.
	BillingPeriodStart time.Time
}

// Validate checks the block shape.
func (c BlockConfig) Validate() error {
	if c.CreditsPerBlock <= 0 {
		return errors.NewValidationError("Block config requires a positive credits-per-block.")
	}
	if c.BlockDuration <= 0 {
		return errors.NewValidationError("Block config requires a positive block duration.")
	}
	if c.WeeklyLimit <= 0 {
		return errors.NewValidationError("Block config requires a positive weekly limit.")
	}
	if c.BillingPeriodStart.IsZero() {
		return errors.NewValidationError("Block config requires the billing period start.")
	}
	return nil
}

// weeklyWindow returns the half-open weekly bucket [start, end) containing
// now. Buckets are 168-hour UTC steps from the billing anchor.
func weeklyWindow(now, anchor time.Time) (time.Time, time.Time) {
	const week = 7 * 24 * time.Hour
	now = now.UTC()
	anchor = anchor.UTC()

	elapsed := now.Sub(anchor)
	start := anchor.Add((elapsed / week) * week)
	if start.After(now) {
		// Duration division truncates toward zero, which rounds the wrong
		// way when now precedes the anchor.
		start = start.Add(-week)
	}
	return start, start.Add(week)
}

func (g CreditGrant) String() string {
	return fmt.Sprintf("grant %s (%s, balance %d/%d)", g.OperationID, g.Type, g.Balance, g.Principal)
}
