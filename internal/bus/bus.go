// Package bus provides an in-memory publish/subscribe fan-out used to move
// normalized market updates from venue producers to the rule engines. Each
// subscriber owns an independent FIFO queue; one publish delivers the item to
// every queue that was registered when the publish began.
package bus

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Bus fans out published items to all registered subscriber channels. The
// subscriber set is guarded by a mutex and snapshotted at the start of each
// publish, so a subscriber joining or leaving mid-publish never sees a
// partial or duplicate copy of that publish.
type Bus[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
}

// New creates an empty Bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[chan T]struct{})}
}

// Publish delivers item to every current subscriber. Deliveries run
// concurrently; a subscriber whose buffer is full blocks the publish until it
// drains or ctx is cancelled. Publishing with zero subscribers is a no-op.
func (b *Bus[T]) Publish(ctx context.Context, item T) error {
	b.mu.Lock()
	snapshot := make([]chan T, 0, len(b.subs))
	for ch := range b.subs {
		snapshot = append(snapshot, ch)
	}
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range snapshot {
		g.Go(func() error {
			select {
			case ch <- item:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}

// Subscribe registers and returns a new subscriber channel with the given
// buffer capacity. The caller reads from it until it unsubscribes.
func (b *Bus[T]) Subscribe(buffer int) chan T {
	ch := make(chan T, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe deregisters ch. It is idempotent and safe to call for a channel
// the bus has never seen. The channel is not closed: a concurrent publish may
// still be holding a reference from its snapshot.
func (b *Bus[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Close deregisters every subscriber and drains any undelivered items from
// their queues.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	snapshot := make([]chan T, 0, len(b.subs))
	for ch := range b.subs {
		snapshot = append(snapshot, ch)
	}
	b.subs = make(map[chan T]struct{})
	b.mu.Unlock()

	for _, ch := range snapshot {
	drain:
		for {
			select {
			case <-ch:
			default:
				break drain
			}
		}
	}
}

// Len reports the current number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
