package repository

import (
	"context"

	"esim-fulfillment/internal/domain/model"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Payment, error)
	FindByIntentID(ctx context.Context, tx Tx, provider model.PaymentProvider, intentID string) (*model.Payment, error)
	// ListByOrder returns attempts for an order, newest first.
	ListByOrder(ctx context.Context, tx Tx, orderID int64) ([]*model.Payment, error)
	// ListUnsettled returns succeeded payments whose order is still created, oldest first.
	ListUnsettled(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)
	// UpdateStatusIfPending moves requires_action -> status and reports whether it did.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id int64, status model.PaymentStatus, raw map[string]any) (bool, error)
}
