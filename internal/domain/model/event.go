package model

import "time"

type EventType string

const (
	EventSignup           EventType = "signup"
	EventCheckoutStarted  EventType = "checkout_started"
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventEsimActivated    EventType = "esim_activated"
	EventEsimFailed       EventType = "esim_failed"
	EventOrderRefunded    EventType = "order_refunded"
)

// Event is a fire-and-forget lifecycle notification.
type Event struct {
	ID               string
	Type             EventType
	UserID           int64
	OrderID          *int64
	PlanID           *int64
	AmountMinorUnits *int64
	Currency         string
	Metadata         map[string]any
	OccurredAt       time.Time
}
