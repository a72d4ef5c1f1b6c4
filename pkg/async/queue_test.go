package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueue_DrainsItems(t *testing.T) {
	q := NewQueue(context.Background(), 10, "test", time.Second)
	defer q.Shutdown(time.Second)

	var count int64
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		q.Enqueue(func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			wg.Done()
			return nil
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain in time")
	}
	assert.Equal(t, int64(3), atomic.LoadInt64(&count))
}

func TestQueue_DropsOldestWhenFull(t *testing.T) {
	// Block the drain worker so items pile up.
	release := make(chan struct{})
	q := NewQueue(context.Background(), 2, "test", time.Second)
	defer q.Shutdown(time.Second)

	var drops int64
	q.OnDrop = func() { atomic.AddInt64(&drops, 1) }

	q.Enqueue(func(ctx context.Context) error {
		<-release
		return nil
	})
	// Give the worker time to pick up the blocker.
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		q.Enqueue(func(ctx context.Context) error { return nil })
	}
	close(release)

	assert.GreaterOrEqual(t, atomic.LoadInt64(&drops), int64(1))
}

func TestQueue_ReportsErrors(t *testing.T) {
	q := NewQueue(context.Background(), 4, "test", time.Second)
	defer q.Shutdown(time.Second)

	errCh := make(chan error, 1)
	q.OnError = func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	boom := errors.New("sink unavailable")
	q.Enqueue(func(ctx context.Context) error { return boom })

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("error was not reported")
	}
}

func TestQueue_PanicDoesNotKillWorker(t *testing.T) {
	q := NewQueue(context.Background(), 4, "test", time.Second)
	defer q.Shutdown(time.Second)

	q.Enqueue(func(ctx context.Context) error { panic("bad item") })

	done := make(chan struct{})
	q.Enqueue(func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}
