package negotiation

import (
	"context"
	"sync"
)

// job is one unit of work on a queue. drop, if set, runs instead of run when
// the queue is closed before the job gets its turn.
type job struct {
	run  func(ctx context.Context)
	drop func()
}

// queue is a goroutine-based single-writer: jobs run one at a time, in
// enqueue order, on the queue's own goroutine. Enqueue never blocks, so
// media-engine callbacks can hand work off without waiting on an in-flight
// operation.
type queue struct {
	ctx context.Context

	mu      sync.Mutex
	inbox   []job
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// newQueue starts the queue's loop. The loop exits when ctx is cancelled or
// close is called.
func newQueue(ctx context.Context) *queue {
	q := &queue{
		ctx:     ctx,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.loop()
	return q
}

// enqueue schedules j. It returns false, without running drop, once the
// queue is closed.
func (q *queue) enqueue(j job) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.inbox = append(q.inbox, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// loop is the single-writer goroutine.
func (q *queue) loop() {
	defer close(q.stopped)

	for {
		if q.ctx.Err() != nil {
			q.close()
			return
		}

		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if len(q.inbox) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-q.ctx.Done():
				q.close()
				return
			}
		}
		j := q.inbox[0]
		q.inbox[0] = job{}
		q.inbox = q.inbox[1:]
		q.mu.Unlock()

		j.run(q.ctx)
	}
}

// close stops accepting jobs and drops everything still waiting. A job
// already running is left to observe the cancelled context. Safe to call
// multiple times.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.inbox
	q.inbox = nil
	q.mu.Unlock()

	for _, j := range pending {
		if j.drop != nil {
			j.drop()
		}
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
}
