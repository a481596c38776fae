package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker is a Locker backed by Redis SET NX, for deployments where
// several daemons share the same clusters.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps an existing Redis client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (r *RedisLocker) makeKey(node string) string {
	return fmt.Sprintf("tradeoff:nodelock:%s", node)
}

func (r *RedisLocker) Acquire(ctx context.Context, node, holder string, ttl time.Duration) (bool, error) {
	key := r.makeKey(node)

	ok, err := r.client.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire node lock: %w", err)
	}
	if ok {
		return true, nil
	}

	// Re-entrancy: if we already hold it, refresh the TTL instead of failing.
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existing node lock: %w", err)
	}
	if val != holder {
		return false, nil
	}

	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	if _, err := r.client.Eval(ctx, script, []string{key}, holder, int64(ttl/time.Millisecond)).Result(); err != nil {
		return false, fmt.Errorf("failed to refresh node lock: %w", err)
	}
	return true, nil
}

func (r *RedisLocker) Release(ctx context.Context, node, holder string) error {
	key := r.makeKey(node)

	// Delete only if we still hold it, so an expired lock taken over by
	// another run is never clobbered.
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	if _, err := r.client.Eval(ctx, script, []string{key}, holder).Result(); err != nil {
		return fmt.Errorf("failed to release node lock: %w", err)
	}
	return nil
}
