package models

import (
	"time"

	"github.com/google/uuid"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

type BillingInterval string

const (
	IntervalMonthly   BillingInterval = "monthly"
	IntervalQuarterly BillingInterval = "quarterly"
	IntervalAnnual    BillingInterval = "annual"
)

type SubscriptionStatus string

// Statuses mirror the billing provider's own set and are always stored lowercase.
const (
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

type Subscription struct {
	ID                   uuid.UUID          `json:"id" db:"id"`
	UserID               string             `json:"user_id" db:"user_id"`
	Plan                 Plan               `json:"plan" db:"plan"`
	Interval             BillingInterval    `json:"interval" db:"interval"`
	StripeSubscriptionID *string            `json:"stripe_subscription_id" db:"stripe_subscription_id"`
	StripeCustomerID     *string            `json:"stripe_customer_id" db:"stripe_customer_id"`
	StripePriceID        *string            `json:"stripe_price_id" db:"stripe_price_id"`
	Status               SubscriptionStatus `json:"status" db:"status"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end" db:"current_period_end"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CreatedAt            time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at"`
}

// SubscriptionWithUser joins a subscription row to its owning user's email
// for display in reconciliation output.
type SubscriptionWithUser struct {
	Subscription
	UserEmail *string `json:"user_email" db:"user_email"`
}
