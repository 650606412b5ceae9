package services

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// ErrUnverifiableEvent covers every way an inbound webhook can fail
// verification: missing signature, missing secret, signature mismatch,
// malformed body. Callers report it as a client error and never retry.
var ErrUnverifiableEvent = errors.New("unverifiable webhook event")

type EventVerifier struct {
	secret string
}

func NewEventVerifier(secret string) *EventVerifier {
	return &EventVerifier{secret: secret}
}

// Verify authenticates a raw webhook payload against the shared secret and
// returns the typed event. It must run before any side effect.
func (v *EventVerifier) Verify(payload []byte, sigHeader string) (stripe.Event, error) {
	if v.secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: no webhook secret configured", ErrUnverifiableEvent)
	}
	if sigHeader == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing signature header", ErrUnverifiableEvent)
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrUnverifiableEvent, err)
	}

	return event, nil
}
