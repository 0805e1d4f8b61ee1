package lock

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrLockAcquireFailed = errors.New("failed to acquire reconciliation lock")
)

// KeyLocker serializes work per transaction id. The success redirect and the
// server notification for the same payment may arrive concurrently; both
// reconciliation paths take this lock before reading the record, so only one
// of them validates and transitions at a time.
type KeyLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MutexLocker is the in-process implementation, suitable for a single
// service instance. A refcounted mutex per key keeps the map from growing
// with the number of transactions ever seen.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*keyLock)}
}

func (l *MutexLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		kl.mu.Unlock()

		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}, nil
}
