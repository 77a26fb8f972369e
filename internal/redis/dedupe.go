package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers keys for a while so periodic jobs act on each item once.
type Deduper interface {
	// FirstSeen returns true the first time key is presented within ttl.
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type redisDeduper struct {
	client *redis.Client
	prefix string
}

func NewRedisDeduper(client *redis.Client, prefix string) Deduper {
	return &redisDeduper{client: client, prefix: prefix}
}

func (d *redisDeduper) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe %s: %w", key, err)
	}
	return ok, nil
}
