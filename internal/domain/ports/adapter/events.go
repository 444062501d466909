package adapter

import (
	"context"

	"esim-fulfillment/internal/domain/model"
)

// EventPublisher delivers lifecycle events. Publish must not block the caller.
type EventPublisher interface {
	Publish(ctx context.Context, e model.Event)
}
