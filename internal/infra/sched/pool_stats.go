package sched

import (
	"context"
	"time"

	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/infra/metrics"
	"esim-fulfillment/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// DBStatsFunc reports total, idle and acquired connections.
type DBStatsFunc func() (total, idle, inUse int32)

func PgxPoolStats(p *pgxpool.Pool) DBStatsFunc {
	return func() (int32, int32, int32) {
		s := p.Stat()
		return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
	}
}

// PoolStatsWorker publishes inventory and connection pool gauges.
type PoolStatsWorker struct {
	interval  time.Duration
	allocator usecase.InventoryAllocator
	db        DBStatsFunc
	log       *zerolog.Logger
}

// NewPoolStatsWorker accepts a nil db when connection stats are not wanted.
func NewPoolStatsWorker(interval time.Duration, allocator usecase.InventoryAllocator, db DBStatsFunc, logger *zerolog.Logger) *PoolStatsWorker {
	l := logger.With().Str("component", "PoolStatsWorker").Logger()
	return &PoolStatsWorker{interval: interval, allocator: allocator, db: db, log: &l}
}

func (w *PoolStatsWorker) Run(ctx context.Context) error {
	w.tick(ctx)
	return every(ctx, w.interval, w.tick)
}

var inventoryStatuses = []model.InventoryStatus{
	model.InventoryAvailable,
	model.InventoryReserved,
	model.InventoryAssigned,
	model.InventoryRetired,
}

func (w *PoolStatsWorker) tick(ctx context.Context) {
	counts, err := w.allocator.CountByStatus(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("inventory counts unavailable")
	} else {
		for _, st := range inventoryStatuses {
			metrics.SetInventoryItems(string(st), counts[st])
		}
	}
	if w.db != nil {
		metrics.SetDBPoolStats(w.db())
	}
}
