package repository

import (
	"context"

	"esim-fulfillment/internal/domain/model"
)

// PlanRepository reads the catalog. Write methods exist for seeding and tests.
type PlanRepository interface {
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Plan, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.Plan, error)
	UpsertCountry(ctx context.Context, tx Tx, iso2, name string) (int64, error)
	UpsertCarrier(ctx context.Context, tx Tx, name string) (int64, error)
	Save(ctx context.Context, tx Tx, p *model.Plan) error
}
