package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Skotchmaster/farm_dashboard/internal/logging"
)

var (
	ErrQueueFull = errors.New("events: publish queue full")
	ErrClosed    = errors.New("events: publisher closed")
)

const (
	DefaultQueueSize      = 1024
	DefaultDeliverTimeout = 5 * time.Second
)

// Background hands events to a slower publisher on its own goroutine, so a
// broker outage never stalls the request that produced the event. When the
// queue is full the event is dropped and Publish reports ErrQueueFull.
type Background struct {
	next    Publisher
	timeout time.Duration
	queue   chan Event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewBackground(next Publisher, size int, timeout time.Duration) *Background {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultDeliverTimeout
	}
	b := &Background{
		next:    next,
		timeout: timeout,
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Background) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.queue <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *Background) run() {
	defer close(b.done)
	for e := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		if err := b.next.Publish(ctx, e); err != nil {
			logging.FromContext(ctx).Warn("event_deliver_failed", "type", e.Type, "id", e.ID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queued ones to be
// delivered, or for ctx to end.
func (b *Background) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
