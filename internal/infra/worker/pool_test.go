//go:build !integration

package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestPool(t *testing.T) {
	t.Run("should run submitted tasks", func(t *testing.T) {
		p := NewPool(2, 8, testLogger())
		p.Start(context.Background())

		var n atomic.Int32
		for i := 0; i < 5; i++ {
			if err := p.Submit(func(ctx context.Context) error {
				n.Add(1)
				return nil
			}); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
		p.Stop()
		if n.Load() != 5 {
			t.Errorf("expected 5 tasks run, got %d", n.Load())
		}
	})

	t.Run("should reject tasks when the queue is full", func(t *testing.T) {
		p := NewPool(1, 1, testLogger())
		block := make(chan struct{})
		started := make(chan struct{})
		p.Start(context.Background())
		_ = p.Submit(func(ctx context.Context) error {
			close(started)
			<-block
			return nil
		})
		<-started
		_ = p.Submit(func(ctx context.Context) error { return nil })
		if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
			t.Errorf("expected ErrQueueFull, got %v", err)
		}
		close(block)
		p.Stop()
	})

	t.Run("should survive failing and panicking tasks", func(t *testing.T) {
		p := NewPool(1, 4, testLogger())
		p.Start(context.Background())
		done := make(chan struct{})
		_ = p.Submit(func(ctx context.Context) error { return errors.New("boom") })
		_ = p.Submit(func(ctx context.Context) error { panic("kaboom") })
		_ = p.Submit(func(ctx context.Context) error { close(done); return nil })
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not recover")
		}
		p.Stop()
	})

	t.Run("should refuse work after stop", func(t *testing.T) {
		p := NewPool(1, 1, testLogger())
		p.Start(context.Background())
		p.Stop()
		p.Stop()
		if err := p.Submit(func(ctx context.Context) error { return nil }); err == nil {
			t.Error("expected an error after stop")
		}
	})
}
