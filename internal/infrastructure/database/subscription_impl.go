package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"promptaat/internal/domain/models"
	"promptaat/internal/domain/repositories"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const subscriptionColumns = `id, user_id, plan, "interval", stripe_subscription_id,
	       stripe_customer_id, stripe_price_id, status, current_period_start,
	       current_period_end, cancel_at_period_end, created_at, updated_at`

type subscriptionRepository struct {
	db *sqlx.DB
}

func NewSubscriptionRepository(db *sqlx.DB) repositories.SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	query := fmt.Sprintf(`
		SELECT %s
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, subscriptionColumns)

	err := r.db.GetContext(ctx, &sub, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subscription for user %s: %w", userID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

func (r *subscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*models.Subscription, error) {
	var sub models.Subscription
	query := fmt.Sprintf(`
		SELECT %s
		FROM subscriptions
		WHERE stripe_subscription_id = $1`, subscriptionColumns)

	err := r.db.GetContext(ctx, &sub, query, stripeSubID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subscription %s: %w", stripeSubID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	query := `
		INSERT INTO subscriptions (id, user_id, plan, "interval", stripe_subscription_id,
		                           stripe_customer_id, stripe_price_id, status,
		                           current_period_start, current_period_end, cancel_at_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, sub.ID, sub.UserID, sub.Plan, sub.Interval,
		sub.StripeSubscriptionID, sub.StripeCustomerID, sub.StripePriceID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd).
		Scan(&sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan = $2, "interval" = $3, stripe_subscription_id = $4,
		    stripe_customer_id = $5, stripe_price_id = $6, status = $7,
		    current_period_start = $8, current_period_end = $9,
		    cancel_at_period_end = $10, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query, sub.ID, sub.Plan, sub.Interval,
		sub.StripeSubscriptionID, sub.StripeCustomerID, sub.StripePriceID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd).
		Scan(&sub.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("subscription %s: %w", sub.ID, repositories.ErrNotFound)
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	return nil
}

func (r *subscriptionRepository) ListAll(ctx context.Context) ([]*models.SubscriptionWithUser, error) {
	subs := []*models.SubscriptionWithUser{}
	query := `
		SELECT s.id, s.user_id, s.plan, s."interval", s.stripe_subscription_id,
		       s.stripe_customer_id, s.stripe_price_id, s.status, s.current_period_start,
		       s.current_period_end, s.cancel_at_period_end, s.created_at, s.updated_at,
		       u.email AS user_email
		FROM subscriptions s
		LEFT JOIN users u ON u.id = s.user_id
		ORDER BY s.created_at`

	if err := r.db.SelectContext(ctx, &subs, query); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return subs, nil
}
