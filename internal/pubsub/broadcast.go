// Package pubsub provides an ordered, non-blocking fan-out stream with a
// small replay window for late subscribers.
package pubsub

import "sync"

// Broadcast delivers every published value to all current subscribers in
// publish order. Publish never blocks: each Subscription owns an unbounded
// FIFO drained by its own goroutine, so a slow subscriber only delays
// itself.
type Broadcast[T any] struct {
	mu     sync.Mutex
	subs   []*Subscription[T]
	replay []T
	size   int
	closed bool
}

// NewBroadcast creates a stream that replays the last replay values to each
// new subscriber. A replay of 0 disables the replay window.
func NewBroadcast[T any](replay int) *Broadcast[T] {
	if replay < 0 {
		replay = 0
	}
	return &Broadcast[T]{size: replay}
}

// Publish appends v to every subscriber's queue. It returns false once the
// stream has been closed.
func (b *Broadcast[T]) Publish(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if b.size > 0 {
		b.replay = append(b.replay, v)
		if len(b.replay) > b.size {
			b.replay = b.replay[len(b.replay)-b.size:]
		}
	}

	for _, s := range b.subs {
		s.push(v)
	}
	return true
}

// Subscribe registers a new subscriber. The replay window is queued ahead of
// any value published afterwards. Subscribing to a closed stream returns a
// subscription whose channel is already closed.
func (b *Broadcast[T]) Subscribe() *Subscription[T] {
	s := newSubscription(b)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, v := range b.replay {
		s.push(v)
	}
	if b.closed {
		s.finish()
		return s
	}
	b.subs = append(b.subs, s)
	return s
}

// Close ends the stream. Values already queued are still delivered, then
// every subscriber channel is closed. Safe to call multiple times.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.finish()
	}
	b.subs = nil
}

func (b *Broadcast[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
