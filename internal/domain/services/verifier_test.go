package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

// signPayload produces a Stripe-Signature header value for the payload.
func signPayload(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyAcceptsSignedEvent(t *testing.T) {
	payload := []byte(`{"id": "evt_1", "type": "customer.subscription.deleted", "data": {"object": {"id": "sub_1"}}}`)
	verifier := NewEventVerifier("whsec_test")

	event, err := verifier.Verify(payload, signPayload("whsec_test", payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, stripe.EventTypeCustomerSubscriptionDeleted, event.Type)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id": "evt_1"}`)
	verifier := NewEventVerifier("whsec_test")

	_, err := verifier.Verify(payload, signPayload("whsec_other", payload, time.Now()))
	require.ErrorIs(t, err, ErrUnverifiableEvent)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"id": "evt_1"}`)
	verifier := NewEventVerifier("whsec_test")
	header := signPayload("whsec_test", payload, time.Now())

	_, err := verifier.Verify([]byte(`{"id": "evt_2"}`), header)
	require.ErrorIs(t, err, ErrUnverifiableEvent)
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	verifier := NewEventVerifier("whsec_test")

	_, err := verifier.Verify([]byte(`{}`), "")
	require.ErrorIs(t, err, ErrUnverifiableEvent)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id": "evt_1"}`)
	verifier := NewEventVerifier("whsec_test")

	_, err := verifier.Verify(payload, signPayload("whsec_test", payload, time.Now().Add(-time.Hour)))
	require.ErrorIs(t, err, ErrUnverifiableEvent)
}

func TestVerifyRequiresConfiguredSecret(t *testing.T) {
	verifier := NewEventVerifier("")

	_, err := verifier.Verify([]byte(`{}`), "t=1,v1=abc")
	require.ErrorIs(t, err, ErrUnverifiableEvent)
}
