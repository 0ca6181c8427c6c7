package ledger

import (
	"context"
	"time"
)

// PaymentGateway is the billing-provider port. The fabric only consumes it:
// implementations live with whoever embeds the ledger, typically a thin
// wrapper over the Stripe client.
type PaymentGateway interface {
	// CreatePaymentIntent starts a purchase of amountCents. The idempotency
	// key makes client retries safe; gateways must return the original
	// intent when the key is replayed.
	CreatePaymentIntent(ctx context.Context, acct Account, amountCents int64, idempotencyKey string) (*PaymentIntent, error)

	// ListPaymentMethods returns the account's stored payment methods.
	ListPaymentMethods(ctx context.Context, acct Account) ([]PaymentMethod, error)

	// RetrieveSubscription fetches the current state of a subscription.
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
}

// PaymentIntent is an in-flight purchase at the payment provider.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	AmountCents  int64  `json:"amountCents"`
	Status       string `json:"status"`
}

// PaymentMethod is a stored card or bank account.
type PaymentMethod struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"expMonth"`
	ExpYear  int    `json:"expYear"`
}

// Subscription is the provider's view of a recurring plan.
type Subscription struct {
	ID                 string    `json:"id"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time `json:"currentPeriodEnd"`
}

// SubscriptionTier maps a plan to its credit parameters. Tier catalogs are
// provider-specific and live with the PaymentGateway implementation.
type SubscriptionTier interface {
	// Name returns the plan's display name.
	Name() string

	// BlockConfig returns the tier's block issuance parameters anchored to
	// the subscription's billing period start.
	BlockConfig(billingPeriodStart time.Time) BlockConfig
}
