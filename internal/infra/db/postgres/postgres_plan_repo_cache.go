package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"
	"esim-fulfillment/internal/infra/metrics"
	red "esim-fulfillment/internal/infra/redis"

	"github.com/go-redis/redis/v8"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

const activePlansKey = "plans:active"

// planRepoCacheDecorator serves catalog reads from Redis and invalidates on writes.
// Reads inside a transaction always go to the database.
type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient, ttl time.Duration) repository.PlanRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func planKey(id int64) string { return fmt.Sprintf("plan:%d", id) }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Plan, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := planKey(id)
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		var plan model.Plan
		if json.Unmarshal([]byte(val), &plan) == nil {
			metrics.IncCacheRequest("plan", "hit")
			return &plan, nil
		}
	case !errors.Is(err, redis.Nil):
		metrics.IncCacheRequest("plan", "error")
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(plan); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return plan, nil
}

func (d *planRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	if tx != nil {
		return d.inner.ListActive(ctx, tx)
	}
	val, err := d.cache.Get(ctx, activePlansKey)
	if err == nil {
		var plans []*model.Plan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest("plan_list", "hit")
			return plans, nil
		}
	}

	metrics.IncCacheRequest("plan_list", "miss")
	plans, err := d.inner.ListActive(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		if b, err := json.Marshal(plans); err == nil {
			_ = d.cache.Set(ctx, activePlansKey, b, d.ttl)
		}
	}
	return plans, nil
}

func (d *planRepoCacheDecorator) UpsertCountry(ctx context.Context, tx repository.Tx, iso2, name string) (int64, error) {
	return d.inner.UpsertCountry(ctx, tx, iso2, name)
}

func (d *planRepoCacheDecorator) UpsertCarrier(ctx context.Context, tx repository.Tx, name string) (int64, error) {
	return d.inner.UpsertCarrier(ctx, tx, name)
}

// Save writes through and drops both the plan and the active list.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	if err := d.inner.Save(ctx, tx, plan); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, planKey(plan.ID), activePlansKey)
	return nil
}
