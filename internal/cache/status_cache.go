package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orrn/printfarm/internal/core"
)

const statusKeyPrefix = "print_status:"

type Config struct {
	Addr string
	DB   int
}

// NewRedisClient connects and pings. The caller owns the client.
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// StatusCache keeps the latest live snapshot of each print status record.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(id int64) string {
	return statusKeyPrefix + strconv.FormatInt(id, 10)
}

func (c *StatusCache) Put(ctx context.Context, snap *core.LiveStatus) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode live status: %w", err)
	}
	return c.client.Set(ctx, statusKey(snap.StatusID), data, c.ttl).Err()
}

// Get returns nil without error on a miss.
func (c *StatusCache) Get(ctx context.Context, id int64) (*core.LiveStatus, error) {
	data, err := c.client.Get(ctx, statusKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	snap := &core.LiveStatus{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to decode live status: %w", err)
	}
	return snap, nil
}

func (c *StatusCache) Invalidate(ctx context.Context, id int64) error {
	return c.client.Del(ctx, statusKey(id)).Err()
}
