package repositories

import (
	"context"

	"promptaat/internal/domain/models"
)

type SubscriptionRepository interface {
	// GetByUserID returns the newest subscription row for the user. In normal
	// operation a user has a single billing record; when duplicates exist the
	// newest row is treated as authoritative.
	GetByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*models.Subscription, error)
	Create(ctx context.Context, sub *models.Subscription) error
	Update(ctx context.Context, sub *models.Subscription) error

	// ListAll returns every subscription row joined to its owning user's email.
	ListAll(ctx context.Context) ([]*models.SubscriptionWithUser, error)
}
