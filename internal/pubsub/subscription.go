package pubsub

import "sync"

// Subscription is one subscriber's view of a Broadcast.
type Subscription[T any] struct {
	owner *Broadcast[T]

	mu       sync.Mutex
	pending  []T
	finished bool

	wake       chan struct{}
	out        chan T
	cancel     chan struct{}
	cancelOnce sync.Once
}

func newSubscription[T any](owner *Broadcast[T]) *Subscription[T] {
	s := &Subscription[T]{
		owner:  owner,
		wake:   make(chan struct{}, 1),
		out:    make(chan T),
		cancel: make(chan struct{}),
	}
	go s.pump()
	return s
}

// C returns the delivery channel. It is closed after the stream is closed
// and every queued value has been received, or right after Cancel.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Cancel detaches the subscriber. Queued values are dropped. Safe to call
// multiple times.
func (s *Subscription[T]) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancel)
		s.owner.remove(s)
	})
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	s.pending = append(s.pending, v)
	s.mu.Unlock()
	s.notify()
}

func (s *Subscription[T]) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.notify()
}

func (s *Subscription[T]) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump is the single goroutine moving queued values to out, preserving
// publish order.
func (s *Subscription[T]) pump() {
	defer close(s.out)

	var zero T
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			done := s.finished
			s.mu.Unlock()
			if done {
				return
			}
			select {
			case <-s.wake:
			case <-s.cancel:
				return
			}
			continue
		}
		v := s.pending[0]
		s.pending[0] = zero
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.cancel:
			return
		}
	}
}
