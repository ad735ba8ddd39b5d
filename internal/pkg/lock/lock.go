package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrLockHeld = errors.New("lock is held by another worker")

// Locker serializes work on a key across goroutines or processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// EmploymentKey is the lock key guarding all mutations of one employment.
func EmploymentKey(employmentID string) string {
	return "employment:" + employmentID
}

// FundingSourceKey guards capacity checks against one funding source.
func FundingSourceKey(source string) string {
	return "funding_source:" + source
}

type heldKey struct{}

// Hold acquires key unless ctx already carries it, in which case the returned
// release is a no-op. The returned ctx marks key as held for nested calls.
func Hold(ctx context.Context, locker Locker, key string) (context.Context, func(), error) {
	if held, ok := ctx.Value(heldKey{}).(map[string]struct{}); ok {
		if _, ok := held[key]; ok {
			return ctx, func() {}, nil
		}
	}

	release, err := locker.Acquire(ctx, key)
	if err != nil {
		return ctx, nil, err
	}

	held := map[string]struct{}{key: {}}
	if parent, ok := ctx.Value(heldKey{}).(map[string]struct{}); ok {
		for k := range parent {
			held[k] = struct{}{}
		}
	}
	return context.WithValue(ctx, heldKey{}, held), release, nil
}

// LocalLocker is an in-process keyed mutex. Waiters block until the key is
// released or ctx is done.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		ch, busy := l.locks[key]
		if !busy {
			ch = make(chan struct{})
			l.locks[key] = ch
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.locks, key)
					l.mu.Unlock()
					close(ch)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
