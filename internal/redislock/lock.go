package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("watch log lock not acquired")

const retryEvery = 50 * time.Millisecond

// Locker serialises watch log read-modify-write cycles across processes
// sharing one log. It satisfies watchlog.Locker.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func New(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Locker{client: client, ttl: ttl, prefix: "lock:resywatch:"}
}

// WithLock blocks until the lock for key is held or ctx is done, then runs
// fn with a context bounded by the lock TTL.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	k := l.prefix + key
	token := uuid.NewString()

	if err := l.acquire(ctx, k, token); err != nil {
		return err
	}
	defer func() {
		// release even if ctx was cancelled while fn ran
		_ = l.release(context.WithoutCancel(ctx), k, token)
	}()

	fctx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(fctx)
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	t := time.NewTicker(retryEvery)
	defer t.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire watch log lock: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
		case <-t.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *Locker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release watch log lock: %w", err)
	}
	return nil
}
