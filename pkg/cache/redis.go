package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Client backs idempotent replays and fixed-window counters.
type Client struct {
	rdb redis.UniversalClient
}

func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// New wraps an existing client.
func New(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// Get returns "" with a nil error for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// incrWindow increments KEYS[1] and sets its expiry in the same step. A key
// left without a TTL (pttl -1) gets one too, so a counter can never outlive
// its window.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) == -1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Incr bumps key within a fixed window starting at its first hit.
func (c *Client) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return incrWindow.Run(ctx, c.rdb, []string{key}, window.Milliseconds()).Int64()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
