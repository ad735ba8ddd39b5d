package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisLocker is a SET NX PX lock shared by every process using the same Redis.
type RedisLocker struct {
	client        redis.Cmdable
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	maxWait       time.Duration
	newToken      func() string
}

type RedisOption func(*RedisLocker)

// WithMaxWait sets how long Acquire keeps retrying a held key. Zero fails fast.
func WithMaxWait(d time.Duration) RedisOption {
	return func(l *RedisLocker) { l.maxWait = d }
}

func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) { l.retryInterval = d }
}

func WithTokenGenerator(fn func() string) RedisOption {
	return func(l *RedisLocker) { l.newToken = fn }
}

func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) { l.prefix = prefix }
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:        client,
		prefix:        "hrms:lock:",
		ttl:           ttl,
		retryInterval: 100 * time.Millisecond,
		maxWait:       10 * time.Second,
		newToken:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := l.newToken()
	deadline := time.Now().Add(l.maxWait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}
		if !time.Now().Add(l.retryInterval).Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
		}

		timer := time.NewTimer(l.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) release(redisKey, token string) {
	// The caller's ctx may already be cancelled; the key must still be freed.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.client.Eval(ctx, releaseScript, []string{redisKey}, token).Err(); err != nil {
		slog.Error("failed to release lock", "key", redisKey, "error", err)
	}
}
