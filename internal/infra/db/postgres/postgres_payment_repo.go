package postgres

import (
	"context"
	"encoding/json"
	"time"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, order_id, provider, intent_id, status, amount_minor_units, currency, raw_payload, created_at, updated_at`

func scanPayment(row interface{ Scan(dest ...interface{}) error }) (*model.Payment, error) {
	var (
		p   model.Payment
		raw []byte
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.Provider, &p.IntentID, &p.Status, &p.AmountMinorUnits,
		&p.Currency, &raw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.RawPayload); err != nil {
			return nil, err
		}
	}
	p.Currency = model.NormalizeCurrency(p.Currency)
	return &p, nil
}

func marshalRaw(raw map[string]any) ([]byte, error) {
	if raw == nil {
		return nil, nil
	}
	return json.Marshal(raw)
}

func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	raw, err := marshalRaw(p.RawPayload)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO payments (order_id, provider, intent_id, status, amount_minor_units, currency, raw_payload, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
RETURNING id, updated_at;`
	row, err := pickRow(ctx, r.pool, tx, q, p.OrderID, p.Provider, p.IntentID, p.Status, p.AmountMinorUnits,
		p.Currency, raw, p.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&p.ID, &p.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Payment, error) {
	q := forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *paymentRepo) FindByIntentID(ctx context.Context, tx repository.Tx, provider model.PaymentProvider, intentID string) (*model.Payment, error) {
	q := forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE provider=$1 AND intent_id=$2`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, provider, intentID)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *paymentRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID int64) ([]*model.Payment, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+paymentColumns+` FROM payments WHERE order_id=$1 ORDER BY created_at DESC, id DESC;`, orderID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, mapExecErr(rows.Err())
	}
	return out, nil
}

func (r *paymentRepo) ListUnsettled(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	const q = `
SELECT p.id, p.order_id, p.provider, p.intent_id, p.status, p.amount_minor_units, p.currency, p.raw_payload, p.created_at, p.updated_at
  FROM payments p
  JOIN orders o ON o.id = p.order_id
 WHERE p.status = 'succeeded'
   AND o.status = 'created'
 ORDER BY p.id
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, mapExecErr(rows.Err())
	}
	return out, nil
}

// UpdateStatusIfPending atomically updates status only while the payment still requires action.
func (r *paymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id int64, status model.PaymentStatus, raw map[string]any) (bool, error) {
	b, err := marshalRaw(raw)
	if err != nil {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE payments
   SET status = $2,
       raw_payload = COALESCE($3, raw_payload),
       updated_at = NOW()
 WHERE id = $1
   AND status = 'requires_action';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), b)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}
