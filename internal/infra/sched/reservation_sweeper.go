package sched

import (
	"context"
	"time"

	"esim-fulfillment/internal/usecase"

	"github.com/rs/zerolog"
)

// ReservationSweeper returns lapsed reservations to the available pool.
// Reserve already reclaims lapsed holds lazily; the sweep keeps pool gauges honest.
type ReservationSweeper struct {
	interval  time.Duration
	allocator usecase.InventoryAllocator
	guard     *Guard
	log       *zerolog.Logger
}

func NewReservationSweeper(interval time.Duration, allocator usecase.InventoryAllocator, g *Guard, logger *zerolog.Logger) *ReservationSweeper {
	l := logger.With().Str("component", "ReservationSweeper").Logger()
	return &ReservationSweeper{interval: interval, allocator: allocator, guard: g, log: &l}
}

func (w *ReservationSweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting reservation sweeper")
	defer w.log.Info().Msg("Stopping reservation sweeper")
	return every(ctx, w.interval, w.tick)
}

func (w *ReservationSweeper) tick(ctx context.Context) {
	w.guard.do(ctx, "lock:sched:reservation-sweep", w.interval, func(ctx context.Context) {
		n, err := w.allocator.ReclaimExpired(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("reservation sweep error")
			return
		}
		if n > 0 {
			w.log.Info().Int64("count", n).Msg("reclaimed lapsed reservations")
		}
	})
}
