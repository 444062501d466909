package postgres

import (
	"context"
	"encoding/json"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, user_id, plan_id, plan_snapshot, status, currency, amount_minor_units,
       idempotency_key, paid_payment_id, failure_reason, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...interface{}) error }) (*model.Order, error) {
	var (
		o    model.Order
		snap []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.PlanID, &snap, &o.Status, &o.Currency, &o.AmountMinorUnits,
		&o.IdempotencyKey, &o.PaidPaymentID, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snap, &o.PlanSnapshot); err != nil {
		return nil, err
	}
	o.Currency = model.NormalizeCurrency(o.Currency)
	return &o, nil
}

func (r *orderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	snap, err := json.Marshal(o.PlanSnapshot)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO orders (user_id, plan_id, plan_snapshot, status, currency, amount_minor_units, idempotency_key, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
RETURNING id, created_at, updated_at;`
	row, err := pickRow(ctx, r.pool, tx, q, o.UserID, o.PlanID, snap, o.Status, o.Currency,
		o.AmountMinorUnits, o.IdempotencyKey, o.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	q := forUpdate(`SELECT `+orderColumns+` FROM orders WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return o, nil
}

func (r *orderRepo) FindByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) (*model.Order, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key=$1;`, key)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return o, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64) ([]*model.Order, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC, id DESC;`, userID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, mapExecErr(rows.Err())
	}
	return out, nil
}

func (r *orderRepo) MarkPaidIfCreated(ctx context.Context, tx repository.Tx, id, paymentID int64) (bool, error) {
	const q = `UPDATE orders SET status='paid', paid_payment_id=$2, updated_at=NOW() WHERE id=$1 AND status='created';`
	return r.transition(ctx, tx, q, id, paymentID)
}

func (r *orderRepo) MarkFailedIfCreated(ctx context.Context, tx repository.Tx, id int64, reason string) (bool, error) {
	const q = `UPDATE orders SET status='failed', failure_reason=$2, updated_at=NOW() WHERE id=$1 AND status='created';`
	return r.transition(ctx, tx, q, id, reason)
}

func (r *orderRepo) MarkRefundedIfPaid(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	const q = `UPDATE orders SET status='refunded', updated_at=NOW() WHERE id=$1 AND status='paid';`
	return r.transition(ctx, tx, q, id)
}

func (r *orderRepo) transition(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (bool, error) {
	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}
