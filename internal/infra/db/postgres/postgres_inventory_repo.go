package postgres

import (
	"context"
	"time"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.InventoryRepository = (*inventoryRepo)(nil)

// inventoryRepo performs every state change as one conditional UPDATE.
// Concurrent writers to the same row serialize on the row lock and the loser
// re-evaluates the WHERE clause, so RowsAffected tells who won.
type inventoryRepo struct{ pool *pgxpool.Pool }

func NewInventoryRepo(pool *pgxpool.Pool) *inventoryRepo {
	return &inventoryRepo{pool: pool}
}

const inventoryColumns = `id, plan_id, country_id, carrier_id, iccid, smdp_address, activation_code, status,
       holder_order_id, reserved_until, assigned_at, created_at`

func scanInventoryItem(row interface{ Scan(dest ...interface{}) error }) (*model.InventoryItem, error) {
	var it model.InventoryItem
	if err := row.Scan(&it.ID, &it.PlanID, &it.CountryID, &it.CarrierID, &it.ICCID, &it.SMDPAddress,
		&it.ActivationCode, &it.Status, &it.HolderOrderID, &it.ReservedUntil, &it.AssignedAt, &it.CreatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *inventoryRepo) Insert(ctx context.Context, tx repository.Tx, it *model.InventoryItem) error {
	if it.Status == "" {
		it.Status = model.InventoryAvailable
	}
	const q = `
INSERT INTO inventory_items (plan_id, country_id, carrier_id, iccid, smdp_address, activation_code, status)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id, created_at;`
	row, err := pickRow(ctx, r.pool, tx, q, it.PlanID, it.CountryID, it.CarrierID, it.ICCID, it.SMDPAddress,
		it.ActivationCode, it.Status)
	if err != nil {
		return err
	}
	if err := row.Scan(&it.ID, &it.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *inventoryRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.InventoryItem, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+inventoryColumns+` FROM inventory_items WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	it, err := scanInventoryItem(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return it, nil
}

func (r *inventoryRepo) FindByHolder(ctx context.Context, tx repository.Tx, orderID int64) (*model.InventoryItem, error) {
	q := forUpdate(`SELECT `+inventoryColumns+` FROM inventory_items
 WHERE holder_order_id=$1 AND status IN ('reserved','assigned')
 ORDER BY id LIMIT 1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	it, err := scanInventoryItem(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return it, nil
}

// ListCandidates reads claimable rows without locking them; TryReserve decides ownership.
// Rows are ordered by id XOR holder so each holder walks the pool from its own start.
func (r *inventoryRepo) ListCandidates(ctx context.Context, tx repository.Tx, cq repository.CandidateQuery) ([]*model.InventoryItem, error) {
	exclude := cq.ExcludeIDs
	if exclude == nil {
		exclude = []int64{}
	}
	limit := cq.Limit
	if limit <= 0 {
		limit = 5
	}
	const q = `
SELECT ` + inventoryColumns + `
  FROM inventory_items
 WHERE (plan_id = $1 OR (plan_id IS NULL AND country_id = $2 AND carrier_id = $3))
   AND (status = 'available' OR (status = 'reserved' AND reserved_until <= $4))
   AND NOT (id = ANY($5))
 ORDER BY (id # $7), id
 LIMIT $6;`
	rows, err := queryRows(ctx, r.pool, tx, q, cq.PlanID, cq.CountryID, cq.CarrierID, cq.Now, exclude, limit, cq.HolderOrderID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.InventoryItem
	for rows.Next() {
		it, err := scanInventoryItem(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, it)
	}
	if rows.Err() != nil {
		return nil, mapExecErr(rows.Err())
	}
	return out, nil
}

func (r *inventoryRepo) TryReserve(ctx context.Context, tx repository.Tx, id, holderOrderID int64, until, now time.Time) (bool, error) {
	const q = `
UPDATE inventory_items
   SET status = 'reserved', holder_order_id = $2, reserved_until = $3, assigned_at = NULL
 WHERE id = $1
   AND (status = 'available' OR (status = 'reserved' AND reserved_until <= $4));`
	return r.conditional(ctx, tx, q, id, holderOrderID, until, now)
}

func (r *inventoryRepo) Assign(ctx context.Context, tx repository.Tx, id, holderOrderID int64, now time.Time) (bool, error) {
	const q = `
UPDATE inventory_items
   SET status = 'assigned', assigned_at = $3, reserved_until = NULL
 WHERE id = $1
   AND status = 'reserved'
   AND holder_order_id = $2
   AND reserved_until > $3;`
	return r.conditional(ctx, tx, q, id, holderOrderID, now)
}

func (r *inventoryRepo) Release(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	const q = `
UPDATE inventory_items
   SET status = 'available', holder_order_id = NULL, reserved_until = NULL
 WHERE id = $1 AND status = 'reserved';`
	return r.conditional(ctx, tx, q, id)
}

func (r *inventoryRepo) ReleaseHeldBy(ctx context.Context, tx repository.Tx, orderID int64) (int64, error) {
	const q = `
UPDATE inventory_items
   SET status = 'available', holder_order_id = NULL, reserved_until = NULL
 WHERE holder_order_id = $1 AND status = 'reserved';`
	cmd, err := execSQL(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return 0, mapExecErr(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *inventoryRepo) ReclaimExpired(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	const q = `
UPDATE inventory_items
   SET status = 'available', holder_order_id = NULL, reserved_until = NULL
 WHERE status = 'reserved' AND reserved_until <= $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, mapExecErr(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *inventoryRepo) Retire(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	const q = `UPDATE inventory_items SET status = 'retired' WHERE id = $1 AND status = 'assigned';`
	return r.conditional(ctx, tx, q, id)
}

func (r *inventoryRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.InventoryStatus]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT status, COUNT(*) FROM inventory_items GROUP BY status;`)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	out := map[model.InventoryStatus]int{}
	for rows.Next() {
		var (
			status model.InventoryStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[status] = n
	}
	if rows.Err() != nil {
		return nil, mapExecErr(rows.Err())
	}
	return out, nil
}

func (r *inventoryRepo) conditional(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (bool, error) {
	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}
