package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GSharvesh/Hac-KP/pkg/errors"
)

func TestMemoryLockerAcquire(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	t.Run("acquire and release", func(t *testing.T) {
		release, err := locker.Acquire(ctx, "case-1", time.Second, time.Minute)

		require.NoError(t, err)
		release()

		// Lock is free again.
		release, err = locker.Acquire(ctx, "case-1", time.Second, time.Minute)
		require.NoError(t, err)
		release()
	})

	t.Run("second acquire fails with ErrBusy", func(t *testing.T) {
		release, err := locker.Acquire(ctx, "case-2", time.Second, time.Minute)
		require.NoError(t, err)
		defer release()

		_, err = locker.Acquire(ctx, "case-2", 20*time.Millisecond, time.Minute)

		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrBusy)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		r1, err := locker.Acquire(ctx, "case-3", time.Second, time.Minute)
		require.NoError(t, err)
		defer r1()

		r2, err := locker.Acquire(ctx, "case-4", 20*time.Millisecond, time.Minute)
		require.NoError(t, err)
		r2()
	})

	t.Run("waiter obtains lock after release", func(t *testing.T) {
		release, err := locker.Acquire(ctx, "case-5", time.Second, time.Minute)
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			r, err := locker.Acquire(ctx, "case-5", time.Second, time.Minute)
			if err == nil {
				r()
			}
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		release()

		require.NoError(t, <-done)
	})

	t.Run("cancelled context aborts the wait", func(t *testing.T) {
		release, err := locker.Acquire(ctx, "case-6", time.Second, time.Minute)
		require.NoError(t, err)
		defer release()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err = locker.Acquire(cancelled, "case-6", time.Second, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("double release is safe", func(t *testing.T) {
		release, err := locker.Acquire(ctx, "case-7", time.Second, time.Minute)
		require.NoError(t, err)

		release()
		release()

		r, err := locker.Acquire(ctx, "case-7", 20*time.Millisecond, time.Minute)
		require.NoError(t, err)
		r()
	})
}

func TestMemoryLockerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "shared", 5*time.Second, time.Minute)
			if err != nil {
				return
			}
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}
