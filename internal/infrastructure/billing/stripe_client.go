package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// providerPageSize is the fixed page size for full-listing sweeps.
const providerPageSize = 100

// StripeClient implements services.ProviderClient on the Stripe API. The
// handle is constructed once at process start and passed by reference; there
// is no package-level key.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(apiKey string) *StripeClient {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeClient{api: api}
}

func (c *StripeClient) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s: %w", id, err)
	}
	return sub, nil
}

func (c *StripeClient) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := c.api.Customers.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %s: %w", id, err)
	}
	return cust, nil
}

func (c *StripeClient) ListCheckoutSessions(ctx context.Context, customerID string, limit int64) ([]*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)

	var sessions []*stripe.CheckoutSession
	iter := c.api.CheckoutSessions.List(params)
	for iter.Next() {
		sessions = append(sessions, iter.CheckoutSession())
		if int64(len(sessions)) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list checkout sessions for %s: %w", customerID, err)
	}

	return sessions, nil
}

// ListSubscriptions pages through every subscription regardless of status.
// The iterator follows Stripe's cursor internally; any page failure surfaces
// through Err and invalidates the whole listing.
func (c *StripeClient) ListSubscriptions(ctx context.Context) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Status: stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(providerPageSize)

	var subs []*stripe.Subscription
	iter := c.api.Subscriptions.List(params)
	for iter.Next() {
		subs = append(subs, iter.Subscription())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return subs, nil
}
