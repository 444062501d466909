package postgres

import (
	"context"
	"time"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.EsimProfileRepository = (*esimRepo)(nil)

type esimRepo struct{ pool *pgxpool.Pool }

func NewEsimRepo(pool *pgxpool.Pool) *esimRepo {
	return &esimRepo{pool: pool}
}

const esimColumns = `id, order_id, user_id, plan_id, inventory_item_id, status, activation_code, iccid, qr_payload,
       instructions, failure_reason, activated_at, expires_at, created_at, updated_at`

func scanEsim(row interface{ Scan(dest ...interface{}) error }) (*model.EsimProfile, error) {
	var p model.EsimProfile
	if err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.PlanID, &p.InventoryItemID, &p.Status, &p.ActivationCode,
		&p.ICCID, &p.QRPayload, &p.Instructions, &p.FailureReason, &p.ActivatedAt, &p.ExpiresAt,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *esimRepo) Create(ctx context.Context, tx repository.Tx, p *model.EsimProfile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO esim_profiles (order_id, user_id, plan_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$5)
RETURNING id, updated_at;`
	row, err := pickRow(ctx, r.pool, tx, q, p.OrderID, p.UserID, p.PlanID, p.Status, p.CreatedAt)
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

func (r *esimRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.EsimProfile, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+esimColumns+` FROM esim_profiles WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	p, err := scanEsim(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *esimRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID int64) (*model.EsimProfile, error) {
	q := forUpdate(`SELECT `+esimColumns+` FROM esim_profiles WHERE order_id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	p, err := scanEsim(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *esimRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64) ([]*model.EsimProfile, error) {
	return r.list(ctx, tx, `SELECT `+esimColumns+` FROM esim_profiles WHERE user_id=$1 ORDER BY created_at DESC, id DESC;`, userID)
}

func (r *esimRepo) ListExpiring(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.EsimProfile, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, tx, `SELECT `+esimColumns+` FROM esim_profiles
 WHERE status='active' AND expires_at <= $1 ORDER BY expires_at LIMIT $2;`, now, limit)
}

func (r *esimRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.EsimProfile, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.EsimProfile
	for rows.Next() {
		p, err := scanEsim(rows)
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

func (r *esimRepo) Update(ctx context.Context, tx repository.Tx, p *model.EsimProfile) error {
	const q = `
UPDATE esim_profiles
   SET inventory_item_id=$2, status=$3, activation_code=$4, iccid=$5, qr_payload=$6, instructions=$7,
       failure_reason=$8, activated_at=$9, expires_at=$10, updated_at=NOW()
 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, p.ID, p.InventoryItemID, p.Status, p.ActivationCode, p.ICCID,
		p.QRPayload, p.Instructions, p.FailureReason, p.ActivatedAt, p.ExpiresAt)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *esimRepo) MarkExpiredIfActive(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	cmd, err := execSQL(ctx, r.pool, tx, `UPDATE esim_profiles SET status='expired', updated_at=NOW() WHERE id=$1 AND status='active';`, id)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}
