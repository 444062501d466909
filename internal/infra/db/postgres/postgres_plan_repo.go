package postgres

import (
	"context"
	"strings"

	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Ensure interface compliance
var _ repository.PlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

const planSelect = `
SELECT p.id, p.name, p.description, p.country_id, c.name, c.iso2, p.carrier_id, k.name,
       p.data_gb::float8, p.is_unlimited, p.duration_days, p.price_minor_units, p.currency,
       p.is_active, p.updated_at
  FROM plans p
  JOIN countries c ON c.id = p.country_id
  JOIN carriers  k ON k.id = p.carrier_id`

func scanPlan(row interface{ Scan(dest ...interface{}) error }) (*model.Plan, error) {
	var p model.Plan
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CountryID, &p.CountryName, &p.CountryISO2,
		&p.CarrierID, &p.CarrierName, &p.DataGB, &p.IsUnlimited, &p.DurationDays, &p.PriceMinorUnits,
		&p.Currency, &p.IsActive, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Currency = strings.TrimSpace(p.Currency)
	p.CountryISO2 = strings.TrimSpace(p.CountryISO2)
	return &p, nil
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Plan, error) {
	row, err := pickRow(ctx, r.pool, tx, planSelect+` WHERE p.id = $1;`, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *PostgresPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	rows, err := queryRows(ctx, r.pool, tx, planSelect+` WHERE p.is_active ORDER BY c.name, p.price_minor_units;`)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, mapScanErr(err)
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, mapExecErr(rows.Err())
	}
	return out, nil
}

func (r *PostgresPlanRepo) UpsertCountry(ctx context.Context, tx repository.Tx, iso2, name string) (int64, error) {
	const q = `
INSERT INTO countries (iso2, name) VALUES ($1, $2)
ON CONFLICT (iso2) DO UPDATE SET name = EXCLUDED.name
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, strings.ToUpper(strings.TrimSpace(iso2)), name)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, mapExecErr(err)
	}
	return id, nil
}

func (r *PostgresPlanRepo) UpsertCarrier(ctx context.Context, tx repository.Tx, name string) (int64, error) {
	const q = `
INSERT INTO carriers (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, strings.TrimSpace(name))
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, mapExecErr(err)
	}
	return id, nil
}

// Save inserts a new plan (ID == 0) or overwrites an existing one.
func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	if p.ID == 0 {
		const q = `
INSERT INTO plans (name, description, country_id, carrier_id, data_gb, is_unlimited, duration_days,
                   price_minor_units, currency, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, updated_at;`
		row, err := pickRow(ctx, r.pool, tx, q, p.Name, p.Description, p.CountryID, p.CarrierID, p.DataGB,
			p.IsUnlimited, p.DurationDays, p.PriceMinorUnits, model.NormalizeCurrency(p.Currency), p.IsActive)
		if err != nil {
			return err
		}
		if err := row.Scan(&p.ID, &p.UpdatedAt); err != nil {
			return mapExecErr(err)
		}
		return nil
	}

	const q = `
UPDATE plans
   SET name=$2, description=$3, country_id=$4, carrier_id=$5, data_gb=$6, is_unlimited=$7,
       duration_days=$8, price_minor_units=$9, currency=$10, is_active=$11, updated_at=NOW()
 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.Description, p.CountryID, p.CarrierID, p.DataGB,
		p.IsUnlimited, p.DurationDays, p.PriceMinorUnits, model.NormalizeCurrency(p.Currency), p.IsActive)
	if err != nil {
		return mapExecErr(err)
	}
	return nil
}
