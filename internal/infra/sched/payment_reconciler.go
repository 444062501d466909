package sched

import (
	"context"
	"time"

	"esim-fulfillment/internal/usecase"

	"github.com/rs/zerolog"
)

// PaymentReconciler marks paid the orders whose succeeded payment was recorded
// but never settled.
type PaymentReconciler struct {
	interval  time.Duration
	paymentUC usecase.PaymentUseCase
	guard     *Guard
	log       *zerolog.Logger
}

func NewPaymentReconciler(interval time.Duration, paymentUC usecase.PaymentUseCase, g *Guard, logger *zerolog.Logger) *PaymentReconciler {
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{interval: interval, paymentUC: paymentUC, guard: g, log: &l}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	defer w.log.Info().Msg("Stopping payment reconciler")
	return every(ctx, w.interval, w.tick)
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	w.guard.do(ctx, "lock:sched:payment-settle", w.interval, func(ctx context.Context) {
		n, err := w.paymentUC.SettleOutstanding(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("payment reconcile error")
			return
		}
		if n > 0 {
			w.log.Info().Int("count", n).Msg("settled outstanding payments")
		}
	})
}
