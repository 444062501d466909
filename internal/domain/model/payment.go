package model

import "time"

type PaymentStatus string

const (
	PaymentStatusRequiresAction PaymentStatus = "requires_action" // provider needs a follow-up callback
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusFailed         PaymentStatus = "failed"
)

func (s PaymentStatus) IsFinal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusRequiresAction, PaymentStatusSucceeded, PaymentStatusFailed:
		return true
	}
	return false
}

type PaymentProvider string

const (
	ProviderMock        PaymentProvider = "MOCK"
	ProviderStripe      PaymentProvider = "STRIPE"
	ProviderMercadoPago PaymentProvider = "MERCADO_PAGO"
)

// Payment records one attempt to pay an order. Retries create new rows.
type Payment struct {
	ID               int64
	OrderID          int64
	Provider         PaymentProvider
	IntentID         string
	Status           PaymentStatus
	AmountMinorUnits int64
	Currency         string
	RawPayload       map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
