package postgres

import (
	"context"
	"encoding/json"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.EventRepository = (*eventRepo)(nil)

type eventRepo struct{ pool *pgxpool.Pool }

func NewEventRepo(pool *pgxpool.Pool) *eventRepo {
	return &eventRepo{pool: pool}
}

// Insert is idempotent on the event id.
func (r *eventRepo) Insert(ctx context.Context, tx repository.Tx, e *model.Event) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return domain.ErrInvalidArgument
		}
		meta = b
	}
	const q = `
INSERT INTO analytics_events (id, event_type, user_id, order_id, plan_id, amount_minor_units, currency, metadata, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9)
ON CONFLICT (id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.Type, e.UserID, e.OrderID, e.PlanID, e.AmountMinorUnits,
		e.Currency, meta, e.OccurredAt)
	if err != nil {
		return mapExecErr(err)
	}
	return nil
}
