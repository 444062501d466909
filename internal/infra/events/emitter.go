package events

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/adapter"
	"esim-fulfillment/internal/domain/ports/repository"
	"esim-fulfillment/internal/infra/metrics"
	"esim-fulfillment/internal/infra/worker"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var _ adapter.EventPublisher = (*Emitter)(nil)

const persistTimeout = 5 * time.Second

// Emitter records lifecycle events in the background.
// Publish returns immediately; persistence failures are logged and counted, never surfaced.
type Emitter struct {
	repo repository.EventRepository
	pool *worker.Pool
	log  *zerolog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewEmitter(repo repository.EventRepository, pool *worker.Pool, logger *zerolog.Logger) *Emitter {
	l := logger.With().Str("component", "EventEmitter").Logger()
	return &Emitter{
		repo:    repo,
		pool:    pool,
		log:     &l,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (e *Emitter) Publish(ctx context.Context, ev model.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = e.newID(ev.OccurredAt)
	}

	err := e.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()
		if err := e.repo.Insert(ctx, nil, &ev); err != nil {
			metrics.IncEvent(string(ev.Type), "error")
			e.log.Warn().Err(err).Str("event_id", ev.ID).Str("type", string(ev.Type)).Msg("event not recorded")
			return nil
		}
		metrics.IncEvent(string(ev.Type), "recorded")
		return nil
	})
	if err != nil {
		metrics.IncEvent(string(ev.Type), "dropped")
		e.log.Warn().Err(err).Str("type", string(ev.Type)).Int64("user_id", ev.UserID).Msg("event dropped")
	}
}

func (e *Emitter) newID(at time.Time) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), e.entropy).String()
}
