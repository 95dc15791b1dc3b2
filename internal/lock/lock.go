// Package lock provides bounded-wait per-key mutual exclusion. Transitions
// lock on the case ID, dedup resolution locks on the fingerprint.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/GSharvesh/Hac-KP/pkg/errors"
)

// Locker acquires an exclusive lock on a key. Acquisition waits at most
// wait before failing with ErrBusy; it never blocks indefinitely. The
// returned function releases the lock and must always be called.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, ttl time.Duration) (release func(), err error)
}

// MemoryLocker is the in-process Locker. It is sufficient for a single
// service instance; multi-instance deployments use RedisLocker so the
// per-case guarantee also holds across processes.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

// Acquire obtains the lock for key, waiting at most wait. The ttl is
// ignored: in-process locks are released by the caller or process exit.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, wait, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-timer.C:
		return nil, errors.ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
