package services

import (
	"context"

	"github.com/stripe/stripe-go/v79"
)

// ProviderClient is the slice of the billing provider's API this subsystem
// consumes. The production implementation lives in infrastructure/billing;
// tests substitute fakes.
type ProviderClient interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	GetCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	// ListCheckoutSessions returns the most recent checkout sessions for a
	// customer, newest first, bounded by limit.
	ListCheckoutSessions(ctx context.Context, customerID string, limit int64) ([]*stripe.CheckoutSession, error)
	// ListSubscriptions pages through every subscription the provider holds,
	// regardless of status. An error means the listing is incomplete and the
	// result must not be used.
	ListSubscriptions(ctx context.Context) ([]*stripe.Subscription, error)
}
