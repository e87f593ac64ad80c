package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// BurstWatcher counts postbacks per house in a sliding window and flags
// houses that exceed the threshold. Purely observational: a flagged
// house is logged by the caller, never rejected.
type BurstWatcher struct {
	client    *redis.Client
	windowSec int
	threshold int
}

type Config struct {
	RedisAddr string
	WindowSec int
	Threshold int
}

var incrWithTTLScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

func NewBurstWatcher(cfg Config) (*BurstWatcher, error) {
	if cfg.WindowSec <= 0 {
		cfg.WindowSec = 300
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1000
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis for burst watcher: %w", err)
	}

	return &BurstWatcher{
		client:    client,
		windowSec: cfg.WindowSec,
		threshold: cfg.Threshold,
	}, nil
}

// Observe increments the window counter for a house and reports whether
// the house is over the threshold.
func (w *BurstWatcher) Observe(ctx context.Context, houseIdentifier string) (bool, error) {
	key := "burst:house:" + houseIdentifier
	count, err := incrWithTTLScript.Run(ctx, w.client, []string{key}, strconv.Itoa(w.windowSec)).Int64()
	if err != nil {
		return false, fmt.Errorf("increment house counter: %w", err)
	}

	return count > int64(w.threshold), nil
}

func (w *BurstWatcher) Close() error {
	return w.client.Close()
}
