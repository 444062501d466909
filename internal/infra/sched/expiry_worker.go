package sched

import (
	"context"
	"time"

	"esim-fulfillment/internal/infra/metrics"
	"esim-fulfillment/internal/usecase"

	"github.com/rs/zerolog"
)

// EsimExpiryWorker periodically moves lapsed eSIM profiles to expired.
type EsimExpiryWorker struct {
	interval time.Duration
	esimUC   usecase.EsimUseCase
	guard    *Guard
	log      *zerolog.Logger
}

func NewEsimExpiryWorker(interval time.Duration, esimUC usecase.EsimUseCase, g *Guard, logger *zerolog.Logger) *EsimExpiryWorker {
	exprLog := logger.With().Str("component", "EsimExpiryWorker").Logger()
	return &EsimExpiryWorker{
		interval: interval,
		esimUC:   esimUC,
		guard:    g,
		log:      &exprLog,
	}
}

func (w *EsimExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting esim expiry worker")
	defer w.log.Info().Msg("Stopping esim expiry worker")
	return every(ctx, w.interval, w.tick)
}

func (w *EsimExpiryWorker) tick(ctx context.Context) {
	w.guard.do(ctx, "lock:sched:esim-expiry", w.interval, func(ctx context.Context) {
		n, err := w.esimUC.ExpireDue(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("esim expiry error")
		}
		if n > 0 {
			metrics.IncEsimsExpired(n)
			w.log.Info().Int("count", n).Msg("expired esim profiles")
		}
	})
}
