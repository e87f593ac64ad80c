package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyGuard short-circuits retried postback deliveries. The
// database unique key remains the durable backstop; this only saves the
// lookups and evaluation for the common fast retry.
type RedisIdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyGuard(addr string, ttl time.Duration) (*RedisIdempotencyGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisIdempotencyGuard{
		client: client,
		ttl:    ttl,
	}, nil
}

// FirstDelivery returns true when this idempotency key has not been seen
// within the TTL window. SETNX returns false when the key already exists.
func (r *RedisIdempotencyGuard) FirstDelivery(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("postback:%s", key)

	wasSet, err := r.client.SetNX(ctx, redisKey, "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}

	return wasSet, nil
}

func (r *RedisIdempotencyGuard) Close() error {
	return r.client.Close()
}
