package adapter

import (
	"context"
	"net/http"

	"esim-fulfillment/internal/domain/model"
)

// IntentRequest is what a provider needs to charge for an order.
type IntentRequest struct {
	OrderID          int64
	UserID           int64
	AmountMinorUnits int64
	Currency         string
	Description      string
	IdempotencyKey   string
}

// IntentResult is a provider-agnostic view of a payment intent.
type IntentResult struct {
	IntentID string
	Status   model.PaymentStatus
	Raw      map[string]any
}

// PaymentGateway is the port for payment providers.
// Gateways never touch orders; callers act on the returned status.
type PaymentGateway interface {
	Name() model.PaymentProvider
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResult, error)
	// ParseCallback decodes a provider notification for a requires_action intent.
	ParseCallback(ctx context.Context, body []byte, header http.Header) (IntentResult, error)
}
