package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"promptaat/internal/domain/models"
	"promptaat/internal/domain/repositories"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

// fakeSubscriptionRepo is an in-memory SubscriptionRepository that counts
// writes so tests can assert the no-side-effect paths.
type fakeSubscriptionRepo struct {
	rows []*models.Subscription
	// userID -> email, for ListAll joins
	emails map[string]string

	createCalls atomic.Int64
	updateCalls atomic.Int64

	writeErr error
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{emails: map[string]string{}}
}

func (f *fakeSubscriptionRepo) GetByUserID(_ context.Context, userID string) (*models.Subscription, error) {
	var newest *models.Subscription
	for _, row := range f.rows {
		if row.UserID != userID {
			continue
		}
		if newest == nil || row.CreatedAt.After(newest.CreatedAt) {
			newest = row
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("subscription for user %s: %w", userID, repositories.ErrNotFound)
	}
	copied := *newest
	return &copied, nil
}

func (f *fakeSubscriptionRepo) GetByStripeSubscriptionID(_ context.Context, stripeSubID string) (*models.Subscription, error) {
	for _, row := range f.rows {
		if row.StripeSubscriptionID != nil && *row.StripeSubscriptionID == stripeSubID {
			copied := *row
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("subscription %s: %w", stripeSubID, repositories.ErrNotFound)
}

func (f *fakeSubscriptionRepo) Create(_ context.Context, sub *models.Subscription) error {
	f.createCalls.Add(1)
	if f.writeErr != nil {
		return f.writeErr
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt
	copied := *sub
	f.rows = append(f.rows, &copied)
	return nil
}

func (f *fakeSubscriptionRepo) Update(_ context.Context, sub *models.Subscription) error {
	f.updateCalls.Add(1)
	if f.writeErr != nil {
		return f.writeErr
	}
	for i, row := range f.rows {
		if row.ID == sub.ID {
			sub.UpdatedAt = time.Now()
			copied := *sub
			f.rows[i] = &copied
			return nil
		}
	}
	return fmt.Errorf("subscription %s: %w", sub.ID, repositories.ErrNotFound)
}

func (f *fakeSubscriptionRepo) ListAll(_ context.Context) ([]*models.SubscriptionWithUser, error) {
	out := make([]*models.SubscriptionWithUser, 0, len(f.rows))
	for _, row := range f.rows {
		item := &models.SubscriptionWithUser{Subscription: *row}
		if email, ok := f.emails[row.UserID]; ok {
			item.UserEmail = &email
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) writes() int64 {
	return f.createCalls.Load() + f.updateCalls.Load()
}

func (f *fakeSubscriptionRepo) mustFind(stripeSubID string) *models.Subscription {
	for _, row := range f.rows {
		if row.StripeSubscriptionID != nil && *row.StripeSubscriptionID == stripeSubID {
			return row
		}
	}
	return nil
}

type fakeUserRepo struct {
	users map[string]*models.User
}

func newFakeUserRepo(ids ...string) *fakeUserRepo {
	f := &fakeUserRepo{users: map[string]*models.User{}}
	for _, id := range ids {
		f.users[id] = &models.User{ID: id, Email: id + "@example.com", Plan: models.PlanFree}
	}
	return f
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	return user, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, repositories.ErrNotFound)
}

type fakeProvider struct {
	subs      map[string]*stripe.Subscription
	customers map[string]*stripe.Customer
	sessions  map[string][]*stripe.CheckoutSession

	listErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subs:      map[string]*stripe.Subscription{},
		customers: map[string]*stripe.Customer{},
		sessions:  map[string][]*stripe.CheckoutSession{},
	}
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, errors.New("no such subscription: " + id)
	}
	return sub, nil
}

func (f *fakeProvider) GetCustomer(_ context.Context, id string) (*stripe.Customer, error) {
	cust, ok := f.customers[id]
	if !ok {
		return nil, errors.New("no such customer: " + id)
	}
	return cust, nil
}

func (f *fakeProvider) ListCheckoutSessions(_ context.Context, customerID string, limit int64) ([]*stripe.CheckoutSession, error) {
	sessions := f.sessions[customerID]
	if int64(len(sessions)) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (f *fakeProvider) ListSubscriptions(_ context.Context) ([]*stripe.Subscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*stripe.Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		out = append(out, sub)
	}
	return out, nil
}

// providerSub builds a provider subscription object for tests.
func providerSub(id, customerID, status string, metadata map[string]string) *stripe.Subscription {
	return &stripe.Subscription{
		ID:                 id,
		Customer:           &stripe.Customer{ID: customerID},
		Status:             stripe.SubscriptionStatus(status),
		CurrentPeriodStart: 1700000000,
		CurrentPeriodEnd:   1702592000,
		Metadata:           metadata,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: "price_pro_monthly"}},
			},
		},
	}
}
