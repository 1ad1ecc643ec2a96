// Package broadcast provides a fan-out hub that relays updates from a single
// publisher to any number of subscribers. Delivery never blocks the
// publisher: each subscriber has a bounded queue, and a subscriber that
// falls behind has its pending updates dropped and is marked as needing a
// full resync.
package broadcast

import (
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the per-subscriber queue size used when Subscribe is
// called with a non-positive buffer.
const DefaultQueueSize = 64

// Hub fans updates out to subscribers. Safe for concurrent use.
type Hub[T any] struct {
	subs   map[*Subscriber[T]]struct{}
	closed bool

	mu sync.Mutex
}

// NewHub creates an empty Hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{
		subs: make(map[*Subscriber[T]]struct{}),
	}
}

// Subscribe registers a new subscriber with a bounded queue of the given
// size. Subscribing to a closed Hub returns a subscriber whose channel is
// already closed.
func (h *Hub[T]) Subscribe(buffer int) *Subscriber[T] {
	if buffer <= 0 {
		buffer = DefaultQueueSize
	}

	s := &Subscriber[T]{
		ch:  make(chan T, buffer),
		hub: h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(s.ch)
		return s
	}

	h.subs[s] = struct{}{}

	return s
}

// Publish delivers v to every subscriber queue. If a queue is full, its
// pending updates are discarded and the subscriber is flagged for resync;
// the update itself is dropped too, since the resync supersedes it.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for s := range h.subs {
		select {
		case s.ch <- v:
			continue
		default:
		}

		// Slow consumer. Drain its queue so it doesn't replay stale deltas
		// after the resync.
	drain:
		for {
			select {
			case <-s.ch:
			default:
				break drain
			}
		}

		s.resync.Store(true)
	}
}

// Close shuts down the Hub and closes every subscriber channel.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true

	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
}

// Subscriber receives updates from a Hub.
type Subscriber[T any] struct {
	ch     chan T
	resync atomic.Bool
	closed atomic.Bool

	hub *Hub[T]
}

// Updates returns the channel of pending updates. It is closed when the
// subscriber or the Hub is closed.
func (s *Subscriber[T]) Updates() <-chan T {
	return s.ch
}

// NeedsResync reports whether updates were dropped since the last check and
// clears the flag. A consumer that sees true must obtain a fresh full
// snapshot before trusting further incremental updates.
func (s *Subscriber[T]) NeedsResync() bool {
	return s.resync.Swap(false)
}

// Close cancels the subscription. Safe to call more than once.
func (s *Subscriber[T]) Close() {
	if s.closed.Swap(true) {
		return
	}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	if _, ok := s.hub.subs[s]; ok {
		delete(s.hub.subs, s)
		close(s.ch)
	}
}
