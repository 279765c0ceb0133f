package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrMutexNotAcquired: another requester holds the mutex right now.
	ErrMutexNotAcquired = errors.New("slot mutex not acquired")

	// ErrMutexUnavailable wraps infrastructure failures while acquiring the
	// mutex (Redis down, timeout). Callers may proceed without the mutex;
	// the storage layer's uniqueness guard stays authoritative.
	ErrMutexUnavailable = errors.New("slot mutex unavailable")
)

// Locker serializes the reserve critical section per slot key. It is a
// contention shield, not the correctness guarantee; the storage layer's
// uniqueness constraint remains the single source of truth.
type Locker interface {
	WithSlotMutex(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type redisSlotMutex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotMutex creates a locker that uses a per slot Redis key.
func NewRedisSlotMutex(client *redis.Client, ttl time.Duration) Locker {
	return &redisSlotMutex{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisSlotMutex) WithSlotMutex(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := "mutex:slot:" + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMutexUnavailable, err)
	}
	if !ok {
		return ErrMutexNotAcquired
	}

	defer func() {
		_ = l.release(ctx, redisKey, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotMutex) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot mutex: %w", err)
	}
	return nil
}
