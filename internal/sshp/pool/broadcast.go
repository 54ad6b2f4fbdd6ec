package pool

import (
	"context"
	"sync"

	"github.com/google/uuid"
	ierrors "github.com/tjper/sshp/internal/errors"
)

// Broadcaster wakes every current waiter on demand. It is adapted from the
// teacher's internal/jobworker/watch.ModWatcher: that type polled a file's
// mtime on a ticker and broadcast to listeners when it changed; here there
// is no file to poll — Notify is called directly by Pool whenever
// paused/aborted/stopping changes, a slot is released, or queued jobs are
// aborted — so the ticker
// and os.Stat machinery are dropped but the mutex + map[uuid.UUID]chan
// listener-registration shape is kept as-is.
type Broadcaster struct {
	mutex     sync.Mutex
	listeners map[uuid.UUID]chan struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[uuid.UUID]chan struct{})}
}

// Notify wakes every goroutine currently blocked in Wait.
func (b *Broadcaster) Notify() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, listener := range b.listeners {
		select {
		case listener <- struct{}{}:
		default:
		}
	}
}

// Wait blocks until Notify is called or ctx is canceled.
func (b *Broadcaster) Wait(ctx context.Context) error {
	b.mutex.Lock()
	id := uuid.New()
	ch := make(chan struct{}, 1)
	b.listeners[id] = ch
	b.mutex.Unlock()

	defer func() {
		b.mutex.Lock()
		delete(b.listeners, id)
		b.mutex.Unlock()
	}()

	select {
	case <-ctx.Done():
		return ierrors.Wrap(ctx.Err())
	case <-ch:
		return nil
	}
}
