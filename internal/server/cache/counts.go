// Package cache keeps per-connection subscriber totals in redis so the
// dashboard can read counts without a table scan. Values are written after
// each successful sync and expire on their own; the database remains the
// source of truth.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const countTTL = 24 * time.Hour

type Counts struct {
	rdb *redis.Client
}

func NewCounts(addr, password string, db int) *Counts {
	return &Counts{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func countKey(connectionID string) string {
	return "listkeeper:subscriber_count:" + connectionID
}

// Set records the subscriber total observed by a completed sync.
func (c *Counts) Set(ctx context.Context, connectionID string, count int) error {
	return c.rdb.Set(ctx, countKey(connectionID), count, countTTL).Err()
}

// Get returns the cached total; ok is false on a cache miss.
func (c *Counts) Get(ctx context.Context, connectionID string) (int, bool, error) {
	n, err := c.rdb.Get(ctx, countKey(connectionID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get: %w", err)
	}
	return n, true, nil
}

// Close releases the underlying client.
func (c *Counts) Close() error {
	return c.rdb.Close()
}
