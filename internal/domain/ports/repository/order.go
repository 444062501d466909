package repository

import (
	"context"

	"esim-fulfillment/internal/domain/model"
)

type OrderRepository interface {
	// Create inserts o and fills ID/CreatedAt. A duplicate idempotency key yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, o *model.Order) error
	// FindByID locks the row FOR UPDATE when tx is a live transaction.
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Order, error)
	FindByIdempotencyKey(ctx context.Context, tx Tx, key string) (*model.Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, tx Tx, userID int64) ([]*model.Order, error)

	// Conditional transitions report whether the row was in the expected state.
	MarkPaidIfCreated(ctx context.Context, tx Tx, id, paymentID int64) (bool, error)
	MarkFailedIfCreated(ctx context.Context, tx Tx, id int64, reason string) (bool, error)
	MarkRefundedIfPaid(ctx context.Context, tx Tx, id int64) (bool, error)
}
