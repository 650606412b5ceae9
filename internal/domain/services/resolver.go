package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"promptaat/internal/domain/repositories"

	"github.com/stripe/stripe-go/v79"
)

// ErrUserNotResolvable means no strategy could attach a provider subscription
// to a local user. The event is dropped; provider redelivery or the offline
// sweep is the recovery path.
var ErrUserNotResolvable = errors.New("user not resolvable")

// checkoutSessionLookback bounds the session listing used as a resolution
// fallback. The session that created a subscription is always among the
// newest few for its customer.
const checkoutSessionLookback = 5

// resolveInput carries everything a strategy may inspect. Strategies are pure;
// all provider lookups happen in the resolver before a strategy runs.
type resolveInput struct {
	sub      *stripe.Subscription
	customer *stripe.Customer
	// recentSession is the newest checkout session for the customer that
	// carries a client reference id, if any.
	recentSession *stripe.CheckoutSession
	// triggerSession is the checkout session from the event itself, set only
	// when the event is a checkout completion.
	triggerSession *stripe.CheckoutSession
}

type resolverStrategy struct {
	name string
	fn   func(in resolveInput) string
}

func fromSubscriptionMetadata(in resolveInput) string {
	if in.sub == nil {
		return ""
	}
	return in.sub.Metadata["userId"]
}

// fromLegacySubscriptionMetadata reads the snake_case key written by an older
// checkout integration.
func fromLegacySubscriptionMetadata(in resolveInput) string {
	if in.sub == nil {
		return ""
	}
	return in.sub.Metadata["user_id"]
}

func fromCustomerMetadata(in resolveInput) string {
	if in.customer == nil {
		return ""
	}
	return in.customer.Metadata["userId"]
}

func fromRecentCheckoutSession(in resolveInput) string {
	if in.recentSession == nil {
		return ""
	}
	return in.recentSession.ClientReferenceID
}

func fromTriggerSession(in resolveInput) string {
	if in.triggerSession == nil {
		return ""
	}
	return in.triggerSession.ClientReferenceID
}

var resolverStrategies = []resolverStrategy{
	{name: "subscription_metadata", fn: fromSubscriptionMetadata},
	{name: "subscription_metadata_legacy", fn: fromLegacySubscriptionMetadata},
	{name: "customer_metadata", fn: fromCustomerMetadata},
	{name: "recent_checkout_session", fn: fromRecentCheckoutSession},
	{name: "trigger_session_reference", fn: fromTriggerSession},
}

// UserResolver maps a provider subscription to the local user that owns it.
type UserResolver struct {
	provider ProviderClient
	users    repositories.UserRepository
	logger   *slog.Logger
}

func NewUserResolver(provider ProviderClient, users repositories.UserRepository, logger *slog.Logger) *UserResolver {
	return &UserResolver{
		provider: provider,
		users:    users,
		logger:   logger,
	}
}

// Resolve runs the strategy chain and verifies the winning id against the
// users table. triggerSession may be nil; it is only set for checkout
// completion events. A resolved id that matches no local user fails the same
// way as no resolution at all: a subscription must never attach to a
// nonexistent user.
func (r *UserResolver) Resolve(ctx context.Context, sub *stripe.Subscription, triggerSession *stripe.CheckoutSession) (string, error) {
	in := resolveInput{sub: sub, triggerSession: triggerSession}

	for _, strat := range resolverStrategies {
		switch strat.name {
		case "customer_metadata":
			in.customer = r.fetchCustomer(ctx, sub)
		case "recent_checkout_session":
			in.recentSession = r.fetchRecentSession(ctx, sub)
		}

		userID := strat.fn(in)
		if userID == "" {
			continue
		}

		if _, err := r.users.GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				r.logWarn("resolved user id has no local user row",
					"user_id", userID, "strategy", strat.name)
				return "", fmt.Errorf("%w: user %s does not exist", ErrUserNotResolvable, userID)
			}
			return "", fmt.Errorf("failed to verify resolved user: %w", err)
		}

		return userID, nil
	}

	return "", ErrUserNotResolvable
}

// ResolveWithEmailFallback extends Resolve with an email match against local
// users. Only the offline sweep uses it; webhooks stick to explicit ids.
func (r *UserResolver) ResolveWithEmailFallback(ctx context.Context, sub *stripe.Subscription) (string, error) {
	userID, err := r.Resolve(ctx, sub, nil)
	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, ErrUserNotResolvable) {
		return "", err
	}

	customer := r.fetchCustomer(ctx, sub)
	if customer == nil || customer.Email == "" {
		return "", ErrUserNotResolvable
	}

	user, err := r.users.GetUserByEmail(ctx, customer.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", fmt.Errorf("%w: no user with email %s", ErrUserNotResolvable, customer.Email)
		}
		return "", fmt.Errorf("failed to match user by email: %w", err)
	}

	return user.ID, nil
}

func (r *UserResolver) fetchCustomer(ctx context.Context, sub *stripe.Subscription) *stripe.Customer {
	if sub == nil || sub.Customer == nil || sub.Customer.ID == "" {
		return nil
	}

	customer, err := r.provider.GetCustomer(ctx, sub.Customer.ID)
	if err != nil {
		r.logWarn("failed to fetch customer for resolution",
			"customer_id", sub.Customer.ID, "error", err)
		return nil
	}
	return customer
}

func (r *UserResolver) fetchRecentSession(ctx context.Context, sub *stripe.Subscription) *stripe.CheckoutSession {
	if sub == nil || sub.Customer == nil || sub.Customer.ID == "" {
		return nil
	}

	sessions, err := r.provider.ListCheckoutSessions(ctx, sub.Customer.ID, checkoutSessionLookback)
	if err != nil {
		r.logWarn("failed to list checkout sessions for resolution",
			"customer_id", sub.Customer.ID, "error", err)
		return nil
	}

	for _, sess := range sessions {
		if sess.ClientReferenceID != "" {
			return sess
		}
	}
	return nil
}

func (r *UserResolver) logWarn(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
