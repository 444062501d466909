package sched

import (
	"context"
	"errors"
	"time"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// Guard makes a periodic job run on one replica at a time.
type Guard struct {
	locker adapter.Locker
	log    *zerolog.Logger
}

// NewGuard returns a guard over locker. A nil locker runs jobs unguarded.
func NewGuard(locker adapter.Locker, logger *zerolog.Logger) *Guard {
	l := logger.With().Str("component", "SchedGuard").Logger()
	return &Guard{locker: locker, log: &l}
}

func (g *Guard) do(ctx context.Context, key string, ttl time.Duration, job func(ctx context.Context)) {
	if g == nil || g.locker == nil {
		job(ctx)
		return
	}
	token, err := g.locker.TryLock(ctx, key, ttl)
	if err != nil {
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			g.log.Warn().Err(err).Str("key", key).Msg("lock failed")
		}
		return
	}
	defer func() {
		if err := g.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			g.log.Debug().Err(err).Str("key", key).Msg("unlock failed")
		}
	}()
	job(ctx)
}

// every runs fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}
