package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired is returned when another process holds the lock.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrUnavailable wraps failures to reach the lock backend. fn has not run.
	ErrUnavailable = errors.New("lock backend unavailable")
)

// Locker guards a critical section shared by every process using the same store.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Noop runs fn directly. Used when no Redis is configured.
type Noop struct{}

func (Noop) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type redisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a locker that uses one Redis key per lock name.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) Locker {
	return &redisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("%s:lock:%s", l.prefix, name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: acquire %s lock: %w", ErrUnavailable, name, err)
	}
	if !ok {
		return ErrNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	// The key expires after ttl; fn itself runs to completion on ctx.
	return fn(ctx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
