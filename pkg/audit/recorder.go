package audit

import (
	"context"
	"time"

	"github.com/shulecore/shulecore/pkg/async"
	"github.com/shulecore/shulecore/pkg/observability"
)

// AsyncRecorder dispatches events to a Store through a bounded queue so the
// primary transaction never waits on, or fails because of, audit writes.
type AsyncRecorder struct {
	store   *Store
	queue   *async.Queue
	logger  *observability.Logger
	onEvent func()
}

// RecorderOptions configures the async recorder.
type RecorderOptions struct {
	QueueSize    int
	WriteTimeout time.Duration
	// Metrics hooks; any may be nil.
	OnEvent   func()
	OnDrop    func()
	OnDepth   func(int)
}

// NewAsyncRecorder creates a recorder draining into store. The queue policy
// is drop-oldest: under sustained sink outage the newest events win, since
// recent activity is what an operator investigates first.
func NewAsyncRecorder(ctx context.Context, store *Store, logger *observability.Logger, opts RecorderOptions) *AsyncRecorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	queue := async.NewQueue(ctx, opts.QueueSize, "audit recording", opts.WriteTimeout)
	queue.OnError = func(err error) {
		logger.WithError(err).Warn("audit write failed")
	}
	queue.OnDrop = func() {
		logger.Warn("audit queue full, dropped oldest event")
		if opts.OnDrop != nil {
			opts.OnDrop()
		}
	}
	queue.OnDepth = opts.OnDepth

	r := &AsyncRecorder{store: store, queue: queue, logger: logger}
	if opts.OnEvent != nil {
		r.onEvent = opts.OnEvent
	}
	return r
}

var _ Recorder = (*AsyncRecorder)(nil)

// Record enqueues the event. It never blocks and never returns an error.
func (r *AsyncRecorder) Record(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if r.onEvent != nil {
		r.onEvent()
	}
	r.queue.Enqueue(func(ctx context.Context) error {
		return r.store.Insert(ctx, event)
	})
}

// Shutdown flushes pending events for up to the given duration.
func (r *AsyncRecorder) Shutdown(wait time.Duration) {
	r.queue.Shutdown(wait)
}
