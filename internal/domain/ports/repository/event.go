package repository

import (
	"context"

	"esim-fulfillment/internal/domain/model"
)

type EventRepository interface {
	Insert(ctx context.Context, tx Tx, e *model.Event) error
}
