package repository

import (
	"context"
	"time"

	"esim-fulfillment/internal/domain/model"
)

type EsimProfileRepository interface {
	Create(ctx context.Context, tx Tx, p *model.EsimProfile) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.EsimProfile, error)
	// FindByOrderID locks the row FOR UPDATE when tx is a live transaction.
	FindByOrderID(ctx context.Context, tx Tx, orderID int64) (*model.EsimProfile, error)
	ListByUser(ctx context.Context, tx Tx, userID int64) ([]*model.EsimProfile, error)
	Update(ctx context.Context, tx Tx, p *model.EsimProfile) error
	ListExpiring(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.EsimProfile, error)
	MarkExpiredIfActive(ctx context.Context, tx Tx, id int64) (bool, error)
}
