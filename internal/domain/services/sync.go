package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"promptaat/internal/domain/models"
	"promptaat/internal/domain/repositories"
	"promptaat/internal/metrics"

	"github.com/stripe/stripe-go/v79"
)

// ErrInvalidPayload means a verified event carried a body this service cannot
// parse. Like verification failures it is a client error: redelivery would
// fail identically.
var ErrInvalidPayload = errors.New("invalid event payload")

// SyncService keeps local subscription rows synchronized with the provider's
// subscription objects. It is the single reconciliation core behind both
// webhook routes and the offline sweep.
type SyncService struct {
	subs     repositories.SubscriptionRepository
	resolver *UserResolver
	provider ProviderClient
	logger   *slog.Logger
}

func NewSyncService(subs repositories.SubscriptionRepository, resolver *UserResolver, provider ProviderClient, logger *slog.Logger) *SyncService {
	return &SyncService{
		subs:     subs,
		resolver: resolver,
		provider: provider,
		logger:   logger,
	}
}

// HandleEvent dispatches one verified provider event. A nil return means the
// event is fully handled or deliberately dropped; an error means persistence
// or provider failure and the caller should let the provider redeliver.
func (s *SyncService) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		var psub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &psub); err != nil {
			return fmt.Errorf("%w: parse subscription: %v", ErrInvalidPayload, err)
		}
		return s.syncSubscriptionEvent(ctx, &psub, nil)

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var psub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &psub); err != nil {
			return fmt.Errorf("%w: parse subscription: %v", ErrInvalidPayload, err)
		}
		return s.MarkCanceled(ctx, psub.ID)

	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("%w: parse checkout session: %v", ErrInvalidPayload, err)
		}
		return s.handleCheckoutCompleted(ctx, &sess)

	default:
		s.logDebug("ignoring unhandled event type", "type", string(event.Type))
		return nil
	}
}

// syncSubscriptionEvent resolves the owner of a provider subscription and
// upserts it. Unresolvable owners are logged and dropped; redelivery cannot
// fix a missing identity, only the sweep or a metadata correction can.
func (s *SyncService) syncSubscriptionEvent(ctx context.Context, psub *stripe.Subscription, triggerSession *stripe.CheckoutSession) error {
	userID, err := s.resolver.Resolve(ctx, psub, triggerSession)
	if err != nil {
		if errors.Is(err, ErrUserNotResolvable) {
			metrics.RecordResolutionFailure()
			s.logWarn("dropping subscription event: owner not resolvable",
				"stripe_subscription_id", psub.ID, "error", err)
			return nil
		}
		return err
	}

	return s.UpsertFromProvider(ctx, psub, userID)
}

func (s *SyncService) handleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	if sess.Mode != stripe.CheckoutSessionModeSubscription || sess.Subscription == nil || sess.Subscription.ID == "" {
		s.logDebug("ignoring non-subscription checkout session", "session_id", sess.ID)
		return nil
	}

	// The session event carries only a subscription reference; fetch the full
	// object so the upsert sees current provider truth.
	psub, err := s.provider.GetSubscription(ctx, sess.Subscription.ID)
	if err != nil {
		return fmt.Errorf("failed to retrieve subscription %s: %w", sess.Subscription.ID, err)
	}

	return s.syncSubscriptionEvent(ctx, psub, sess)
}

// UpsertFromProvider makes exactly one local row reflect the provider
// subscription's current state. It is idempotent: the row is re-derived from
// provider truth, never from a local delta, so replays and out-of-order
// deliveries converge on the same final state.
func (s *SyncService) UpsertFromProvider(ctx context.Context, psub *stripe.Subscription, userID string) error {
	existing, err := s.subs.GetByStripeSubscriptionID(ctx, psub.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		// A row may have been pre-created at checkout initiation with only a
		// user id; adopt it rather than inserting a duplicate.
		existing, err = s.subs.GetByUserID(ctx, userID)
		if errors.Is(err, repositories.ErrNotFound) {
			existing, err = nil, nil
		}
	}
	if err != nil {
		return fmt.Errorf("failed to look up subscription: %w", err)
	}

	if existing == nil {
		sub := &models.Subscription{
			UserID:   userID,
			Plan:     models.PlanPro,
			Interval: models.IntervalMonthly,
		}
		if plan, ok := planFromMetadata(psub.Metadata); ok {
			sub.Plan = plan
		}
		if interval, ok := intervalFromMetadata(psub.Metadata); ok {
			sub.Interval = interval
		}
		applyProviderState(sub, psub)

		if err := s.subs.Create(ctx, sub); err != nil {
			return err
		}
		metrics.RecordSync("created")
		s.logInfo("created subscription from provider state",
			"stripe_subscription_id", psub.ID, "user_id", userID, "status", string(sub.Status))
		return nil
	}

	if plan, ok := planFromMetadata(psub.Metadata); ok {
		existing.Plan = plan
	}
	if interval, ok := intervalFromMetadata(psub.Metadata); ok {
		existing.Interval = interval
	}
	applyProviderState(existing, psub)

	if err := s.subs.Update(ctx, existing); err != nil {
		return err
	}
	metrics.RecordSync("updated")
	s.logInfo("updated subscription from provider state",
		"stripe_subscription_id", psub.ID, "user_id", existing.UserID, "status", string(existing.Status))
	return nil
}

// MarkCanceled handles a provider-side deletion. A missing local row is a
// no-op: there is nothing to cancel.
func (s *SyncService) MarkCanceled(ctx context.Context, stripeSubID string) error {
	sub, err := s.subs.GetByStripeSubscriptionID(ctx, stripeSubID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logWarn("subscription deleted at provider but unknown locally",
				"stripe_subscription_id", stripeSubID)
			return nil
		}
		return fmt.Errorf("failed to look up subscription: %w", err)
	}

	sub.Status = models.StatusCanceled
	sub.CancelAtPeriodEnd = false

	if err := s.subs.Update(ctx, sub); err != nil {
		return err
	}
	metrics.RecordSync("canceled")
	s.logInfo("marked subscription canceled",
		"stripe_subscription_id", stripeSubID, "user_id", sub.UserID)
	return nil
}

// applyProviderState copies the provider-owned fields onto the local row.
// Plan and interval are metadata-driven and handled by the caller.
func applyProviderState(sub *models.Subscription, psub *stripe.Subscription) {
	sub.StripeSubscriptionID = &psub.ID
	if psub.Customer != nil && psub.Customer.ID != "" {
		customerID := psub.Customer.ID
		sub.StripeCustomerID = &customerID
	}
	if priceID := priceIDOf(psub); priceID != "" {
		sub.StripePriceID = &priceID
	}
	sub.Status = normalizeStatus(psub.Status)
	sub.CurrentPeriodStart = epochToTime(psub.CurrentPeriodStart)
	sub.CurrentPeriodEnd = epochToTime(psub.CurrentPeriodEnd)
	sub.CancelAtPeriodEnd = psub.CancelAtPeriodEnd
}

// normalizeStatus lowercases the provider status; deliveries have been seen
// with mixed case.
func normalizeStatus(status stripe.SubscriptionStatus) models.SubscriptionStatus {
	return models.SubscriptionStatus(strings.ToLower(string(status)))
}

func priceIDOf(psub *stripe.Subscription) string {
	if psub.Items == nil || len(psub.Items.Data) == 0 || psub.Items.Data[0].Price == nil {
		return ""
	}
	return psub.Items.Data[0].Price.ID
}

func epochToTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func planFromMetadata(metadata map[string]string) (models.Plan, bool) {
	switch models.Plan(metadata["plan"]) {
	case models.PlanFree:
		return models.PlanFree, true
	case models.PlanPro:
		return models.PlanPro, true
	}
	return "", false
}

func intervalFromMetadata(metadata map[string]string) (models.BillingInterval, bool) {
	switch models.BillingInterval(metadata["interval"]) {
	case models.IntervalMonthly:
		return models.IntervalMonthly, true
	case models.IntervalQuarterly:
		return models.IntervalQuarterly, true
	case models.IntervalAnnual:
		return models.IntervalAnnual, true
	}
	return "", false
}

func (s *SyncService) logInfo(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *SyncService) logWarn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *SyncService) logDebug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
