package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"promptaat/internal/domain/models"
	"promptaat/internal/domain/repositories"
	"promptaat/internal/metrics"

	"github.com/stripe/stripe-go/v79"
)

// SweepOptions controls a reconciliation run. IsDryRun defaults to true at
// the CLI: an ad hoc run must never mass-mutate by accident.
type SweepOptions struct {
	IsDryRun bool
}

// DriftItem describes one out-of-sync subscription.
type DriftItem struct {
	StripeSubscriptionID string
	UserID               string
	UserEmail            string
	Detail               string
}

// DriftReport summarizes one sweep: what drifted and, in fix mode, what was
// done about it.
type DriftReport struct {
	ProviderCount int
	LocalCount    int

	MissingInDB      []DriftItem
	Orphaned         []DriftItem
	StatusMismatches []DriftItem

	Created   int
	Canceled  int
	Corrected int
	Skipped   int
	Failed    int
}

// Reconciler batch-compares every provider subscription against every local
// row and fixes three categories of drift without any webhook having fired.
type Reconciler struct {
	subs     repositories.SubscriptionRepository
	resolver *UserResolver
	provider ProviderClient
	sync     *SyncService
	logger   *slog.Logger
}

func NewReconciler(subs repositories.SubscriptionRepository, resolver *UserResolver, provider ProviderClient, sync *SyncService, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		subs:     subs,
		resolver: resolver,
		provider: provider,
		sync:     sync,
		logger:   logger,
	}
}

// Run executes the sweep. A provider fetch failure aborts the whole run:
// drift detection against an incomplete provider listing would cancel rows
// whose subscriptions merely failed to list.
func (r *Reconciler) Run(ctx context.Context, opts SweepOptions) (*DriftReport, error) {
	providerSubs, err := r.provider.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider subscriptions: %w", err)
	}

	locals, err := r.subs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local subscriptions: %w", err)
	}

	report := &DriftReport{
		ProviderCount: len(providerSubs),
		LocalCount:    len(locals),
	}

	providerByID := make(map[string]*stripe.Subscription, len(providerSubs))
	for _, psub := range providerSubs {
		providerByID[psub.ID] = psub
	}

	localByStripeID := make(map[string]*models.SubscriptionWithUser, len(locals))
	for _, local := range locals {
		if local.StripeSubscriptionID != nil && *local.StripeSubscriptionID != "" {
			localByStripeID[*local.StripeSubscriptionID] = local
		}
	}

	r.findMissingInDB(ctx, providerSubs, localByStripeID, opts, report)
	r.findOrphaned(ctx, locals, providerByID, opts, report)
	r.findStatusMismatches(ctx, locals, providerByID, opts, report)

	return report, nil
}

// findMissingInDB creates local rows for provider subscriptions with no local
// counterpart. Unresolvable owners are skipped, not fatal.
func (r *Reconciler) findMissingInDB(ctx context.Context, providerSubs []*stripe.Subscription, localByStripeID map[string]*models.SubscriptionWithUser, opts SweepOptions, report *DriftReport) {
	for _, psub := range providerSubs {
		if _, ok := localByStripeID[psub.ID]; ok {
			continue
		}

		metrics.RecordSweepDrift("missing_in_db")
		userID, err := r.resolver.ResolveWithEmailFallback(ctx, psub)
		if err != nil {
			report.Skipped++
			if errors.Is(err, ErrUserNotResolvable) {
				r.logWarn("provider subscription has no local row and no resolvable owner",
					"stripe_subscription_id", psub.ID)
			} else {
				r.logWarn("failed to resolve owner for provider subscription",
					"stripe_subscription_id", psub.ID, "error", err)
			}
			continue
		}

		report.MissingInDB = append(report.MissingInDB, DriftItem{
			StripeSubscriptionID: psub.ID,
			UserID:               userID,
			Detail:               fmt.Sprintf("provider status %q, no local row", psub.Status),
		})

		if opts.IsDryRun {
			continue
		}
		if err := r.sync.UpsertFromProvider(ctx, psub, userID); err != nil {
			report.Failed++
			r.logError("failed to create local subscription", err,
				"stripe_subscription_id", psub.ID, "user_id", userID)
			continue
		}
		report.Created++
	}
}

// findOrphaned cancels local rows whose provider subscription id no longer
// appears provider-side. Rows already canceled are left alone.
func (r *Reconciler) findOrphaned(ctx context.Context, locals []*models.SubscriptionWithUser, providerByID map[string]*stripe.Subscription, opts SweepOptions, report *DriftReport) {
	for _, local := range locals {
		if local.StripeSubscriptionID == nil || *local.StripeSubscriptionID == "" {
			continue
		}
		if _, ok := providerByID[*local.StripeSubscriptionID]; ok {
			continue
		}
		if local.Status == models.StatusCanceled {
			continue
		}

		metrics.RecordSweepDrift("orphaned")
		report.Orphaned = append(report.Orphaned, DriftItem{
			StripeSubscriptionID: *local.StripeSubscriptionID,
			UserID:               local.UserID,
			UserEmail:            emailOf(local),
			Detail:               fmt.Sprintf("local status %q, absent at provider", local.Status),
		})

		if opts.IsDryRun {
			continue
		}

		sub := local.Subscription
		sub.Status = models.StatusCanceled
		sub.CancelAtPeriodEnd = false
		if err := r.subs.Update(ctx, &sub); err != nil {
			report.Failed++
			r.logError("failed to cancel orphaned subscription", err,
				"stripe_subscription_id", *local.StripeSubscriptionID)
			continue
		}
		report.Canceled++
	}
}

// findStatusMismatches adopts the provider's status, period bounds, and
// cancel flag wherever the local status disagrees.
func (r *Reconciler) findStatusMismatches(ctx context.Context, locals []*models.SubscriptionWithUser, providerByID map[string]*stripe.Subscription, opts SweepOptions, report *DriftReport) {
	for _, local := range locals {
		if local.StripeSubscriptionID == nil || *local.StripeSubscriptionID == "" {
			continue
		}
		psub, ok := providerByID[*local.StripeSubscriptionID]
		if !ok {
			continue
		}
		providerStatus := normalizeStatus(psub.Status)
		if local.Status == providerStatus {
			continue
		}

		metrics.RecordSweepDrift("status_mismatch")
		report.StatusMismatches = append(report.StatusMismatches, DriftItem{
			StripeSubscriptionID: psub.ID,
			UserID:               local.UserID,
			UserEmail:            emailOf(local),
			Detail:               fmt.Sprintf("local %q, provider %q", local.Status, providerStatus),
		})

		if opts.IsDryRun {
			continue
		}

		sub := local.Subscription
		sub.Status = providerStatus
		sub.CurrentPeriodStart = epochToTime(psub.CurrentPeriodStart)
		sub.CurrentPeriodEnd = epochToTime(psub.CurrentPeriodEnd)
		sub.CancelAtPeriodEnd = psub.CancelAtPeriodEnd
		if err := r.subs.Update(ctx, &sub); err != nil {
			report.Failed++
			r.logError("failed to correct subscription status", err,
				"stripe_subscription_id", psub.ID)
			continue
		}
		report.Corrected++
	}
}

func emailOf(local *models.SubscriptionWithUser) string {
	if local.UserEmail == nil {
		return ""
	}
	return *local.UserEmail
}

func (r *Reconciler) logWarn(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Reconciler) logError(msg string, err error, args ...interface{}) {
	if r.logger != nil {
		allArgs := append([]interface{}{"error", err}, args...)
		r.logger.Error(msg, allArgs...)
	}
}
