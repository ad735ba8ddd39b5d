package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_Serializes(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "employment:1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalLocker_DoubleReleaseIsSafe(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	release2, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release2()
}

func TestHold_Reentrant(t *testing.T) {
	locker := NewLocalLocker()
	ctx, release, err := Hold(context.Background(), locker, EmploymentKey("e1"))
	require.NoError(t, err)
	defer release()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, inner, err := Hold(ctx, locker, EmploymentKey("e1"))
		if assert.NoError(t, err) {
			inner()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested Hold blocked on a key already held by ctx")
	}
}

func TestHold_NestedDistinctKeys(t *testing.T) {
	locker := NewLocalLocker()
	ctx, releaseEmployment, err := Hold(context.Background(), locker, EmploymentKey("e1"))
	require.NoError(t, err)
	ctx, releaseSource, err := Hold(ctx, locker, FundingSourceKey("grant_item:g1"))
	require.NoError(t, err)

	blocked, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(blocked, FundingSourceKey("grant_item:g1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, again, err := Hold(ctx, locker, FundingSourceKey("grant_item:g1"))
	require.NoError(t, err)
	again()

	releaseSource()
	releaseEmployment()
	release, err := locker.Acquire(context.Background(), FundingSourceKey("grant_item:g1"))
	require.NoError(t, err)
	release()
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	fixedToken := func() string { return "token-1" }

	t.Run("acquire and release", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		locker := NewRedisLocker(client, 30*time.Second, WithTokenGenerator(fixedToken))

		mock.ExpectSetNX("hrms:lock:employment:e1", "token-1", 30*time.Second).SetVal(true)
		mock.ExpectEval(releaseScript, []string{"hrms:lock:employment:e1"}, "token-1").SetVal(int64(1))

		release, err := locker.Acquire(ctx, EmploymentKey("e1"))
		require.NoError(t, err)
		release()

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("held key fails fast without wait", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		locker := NewRedisLocker(client, 30*time.Second, WithTokenGenerator(fixedToken), WithMaxWait(0))

		mock.ExpectSetNX("hrms:lock:employment:e1", "token-1", 30*time.Second).SetVal(false)

		_, err := locker.Acquire(ctx, EmploymentKey("e1"))
		assert.ErrorIs(t, err, ErrLockHeld)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries until free", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		locker := NewRedisLocker(client, 30*time.Second,
			WithTokenGenerator(fixedToken),
			WithRetryInterval(time.Millisecond),
			WithMaxWait(time.Second),
		)

		mock.ExpectSetNX("hrms:lock:k", "token-1", 30*time.Second).SetVal(false)
		mock.ExpectSetNX("hrms:lock:k", "token-1", 30*time.Second).SetVal(true)

		release, err := locker.Acquire(ctx, "k")
		require.NoError(t, err)
		assert.NotNil(t, release)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		locker := NewRedisLocker(client, 30*time.Second, WithTokenGenerator(fixedToken))

		mock.ExpectSetNX("hrms:lock:k", "token-1", 30*time.Second).SetErr(assert.AnError)

		_, err := locker.Acquire(ctx, "k")
		assert.ErrorIs(t, err, assert.AnError)
	})
}
