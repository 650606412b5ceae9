package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func TestResolveFromSubscriptionMetadata(t *testing.T) {
	provider := newFakeProvider()
	users := newFakeUserRepo("user-1")
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", map[string]string{"userId": "user-1"})

	userID, err := resolver.Resolve(context.Background(), sub, nil)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestResolveLegacyMetadataKey(t *testing.T) {
	provider := newFakeProvider()
	users := newFakeUserRepo("user-2")
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", map[string]string{"user_id": "user-2"})

	userID, err := resolver.Resolve(context.Background(), sub, nil)
	require.NoError(t, err)
	assert.Equal(t, "user-2", userID)
}

func TestResolveCamelCaseWinsOverLegacy(t *testing.T) {
	provider := newFakeProvider()
	users := newFakeUserRepo("user-1", "user-2")
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", map[string]string{
		"userId":  "user-1",
		"user_id": "user-2",
	})

	userID, err := resolver.Resolve(context.Background(), sub, nil)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestResolveFromCustomerMetadata(t *testing.T) {
	provider := newFakeProvider()
	provider.customers["cus_1"] = &stripe.Customer{
		ID:       "cus_1",
		Metadata: map[string]string{"userId": "user-3"},
	}
	users := newFakeUserRepo("user-3")
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", nil)

	userID, err := resolver.Resolve(context.Background(), sub, nil)
	require.NoError(t, err)
	assert.Equal(t, "user-3", userID)
}

func TestResolveFromRecentCheckoutSession(t *testing.T) {
	provider := newFakeProvider()
	provider.customers["cus_1"] = &stripe.Customer{ID: "cus_1"}
	provider.sessions["cus_1"] = []*stripe.CheckoutSession{
		{ID: "cs_1"}, // no reference id, skipped
		{ID: "cs_2", ClientReferenceID: "user-4"},
	}
	users := newFakeUserRepo("user-4")
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", nil)

	userID, err := resolver.Resolve(context.Background(), sub, nil)
	require.NoError(t, err)
	assert.Equal(t, "user-4", userID)
}

func TestResolveFromTriggerSession(t *testing.T) {
	provider := newFakeProvider()
	provider.customers["cus_1"] = &stripe.Customer{ID: "cus_1"}
	users := newFakeUserRepo("user-5")
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", nil)
	trigger := &stripe.CheckoutSession{ID: "cs_9", ClientReferenceID: "user-5"}

	userID, err := resolver.Resolve(context.Background(), sub, trigger)
	require.NoError(t, err)
	assert.Equal(t, "user-5", userID)
}

func TestResolveNothingResolvable(t *testing.T) {
	provider := newFakeProvider()
	provider.customers["cus_1"] = &stripe.Customer{ID: "cus_1"}
	users := newFakeUserRepo()
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", nil)

	_, err := resolver.Resolve(context.Background(), sub, nil)
	require.ErrorIs(t, err, ErrUserNotResolvable)
}

func TestResolveRejectsNonexistentUser(t *testing.T) {
	provider := newFakeProvider()
	users := newFakeUserRepo() // empty: "ghost" does not exist
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", map[string]string{"userId": "ghost"})

	_, err := resolver.Resolve(context.Background(), sub, nil)
	require.ErrorIs(t, err, ErrUserNotResolvable)
}

func TestResolveSurvivesCustomerFetchFailure(t *testing.T) {
	provider := newFakeProvider() // cus_1 unknown, GetCustomer errors
	users := newFakeUserRepo("user-6")
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", nil)
	trigger := &stripe.CheckoutSession{ID: "cs_1", ClientReferenceID: "user-6"}

	userID, err := resolver.Resolve(context.Background(), sub, trigger)
	require.NoError(t, err)
	assert.Equal(t, "user-6", userID)
}

func TestResolveWithEmailFallback(t *testing.T) {
	provider := newFakeProvider()
	provider.customers["cus_1"] = &stripe.Customer{ID: "cus_1", Email: "user-7@example.com"}
	users := newFakeUserRepo("user-7")
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", nil)

	userID, err := resolver.ResolveWithEmailFallback(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, "user-7", userID)
}

func TestResolveWithEmailFallbackNoMatch(t *testing.T) {
	provider := newFakeProvider()
	provider.customers["cus_1"] = &stripe.Customer{ID: "cus_1", Email: "stranger@example.com"}
	users := newFakeUserRepo("user-8")
	resolver := NewUserResolver(provider, users, nil)

	sub := providerSub("sub_1", "cus_1", "active", nil)

	_, err := resolver.ResolveWithEmailFallback(context.Background(), sub)
	require.ErrorIs(t, err, ErrUserNotResolvable)
}
