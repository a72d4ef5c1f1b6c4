package async

import (
	"context"
	"sync"
	"time"
)

// Queue is a bounded dispatch queue drained by a single background worker.
// When the queue is full the oldest pending item is dropped to make room, so
// producers never block on a slow sink. Dropped counts are reported through
// the OnDrop callback.
type Queue struct {
	items    chan func(context.Context) error
	timeout  time.Duration
	taskName string

	// OnDrop is invoked (if set) each time an item is discarded.
	OnDrop func()
	// OnError is invoked (if set) when a drained item returns an error.
	OnError func(error)
	// OnDepth is invoked (if set) after every enqueue/drain with the
	// current queue depth.
	OnDepth func(int)

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewQueue creates and starts a queue with the given capacity. Each drained
// item runs with the given per-item timeout.
func NewQueue(parentCtx context.Context, capacity int, taskName string, timeout time.Duration) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	ctx, cancel := context.WithCancel(parentCtx)
	q := &Queue{
		items:    make(chan func(context.Context) error, capacity),
		timeout:  timeout,
		taskName: taskName,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go q.drain()
	return q
}

// Enqueue adds an item, dropping the oldest pending item when full. It never
// blocks the caller.
func (q *Queue) Enqueue(fn func(context.Context) error) {
	for {
		select {
		case q.items <- fn:
			q.reportDepth()
			return
		default:
		}
		// Full: discard the oldest and retry.
		select {
		case <-q.items:
			if q.OnDrop != nil {
				q.OnDrop()
			}
		default:
		}
	}
}

func (q *Queue) drain() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			// Drain whatever is left before exiting.
			for {
				select {
				case fn := <-q.items:
					q.run(fn)
				default:
					return
				}
			}
		case fn := <-q.items:
			q.run(fn)
			q.reportDepth()
		}
	}
}

func (q *Queue) run(fn func(context.Context) error) {
	defer func() {
		recover() // a panicking item must not kill the drain loop
	}()
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := fn(ctx); err != nil && q.OnError != nil {
		q.OnError(err)
	}
}

func (q *Queue) reportDepth() {
	if q.OnDepth != nil {
		q.OnDepth(len(q.items))
	}
}

// Shutdown stops the worker and waits up to the given duration for pending
// items to finish.
func (q *Queue) Shutdown(wait time.Duration) {
	q.stopOnce.Do(func() {
		q.cancel()
		select {
		case <-q.done:
		case <-time.After(wait):
		}
	})
}
