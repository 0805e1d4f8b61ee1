package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/easypay/payment-gateway/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexLocker_SerializesSameKey(t *testing.T) {
	l := NewMutexLocker()
	ctx := context.Background()

	var mu sync.Mutex
	var order []int
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			release, err := l.Acquire(ctx, "TXN-1")
			require.NoError(t, err)
			defer release()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			order = append(order, n)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, order, 10)
	assert.Equal(t, 1, maxInCritical)
}

func TestMutexLocker_IndependentKeys(t *testing.T) {
	l := NewMutexLocker()
	ctx := context.Background()

	releaseA, err := l.Acquire(ctx, "TXN-A")
	require.NoError(t, err)
	defer releaseA()

	// a different key must not block
	done := make(chan struct{})
	go func() {
		releaseB, err := l.Acquire(ctx, "TXN-B")
		assert.NoError(t, err)
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire on independent key blocked")
	}
}

func TestMutexLocker_ReleaseIsIdempotent(t *testing.T) {
	l := NewMutexLocker()
	release, err := l.Acquire(context.Background(), "TXN-1")
	require.NoError(t, err)

	release()
	release() // second call must be a no-op

	release2, err := l.Acquire(context.Background(), "TXN-1")
	require.NoError(t, err)
	release2()
}

func setupRedisLocker(t *testing.T) *RedisLocker {
	mr := miniredis.RunT(t)

	adapter, err := redis.NewRedisAdapter("lock-test-"+t.Name(), "test", &redis.Options{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	cfg := DefaultRedisLockerConfig()
	cfg.PollInterval = 5 * time.Millisecond
	return NewRedisLocker(adapter, cfg)
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	l := setupRedisLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "TXN-1")
	require.NoError(t, err)

	// second acquire on the same key blocks until released
	acquired := make(chan struct{})
	go func() {
		release2, err := l.Acquire(ctx, "TXN-1")
		assert.NoError(t, err)
		release2()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never succeeded after release")
	}
}

func TestRedisLocker_ContextCancellation(t *testing.T) {
	l := setupRedisLocker(t)

	release, err := l.Acquire(context.Background(), "TXN-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx, "TXN-1")
	assert.ErrorIs(t, err, ErrLockAcquireFailed)
}
