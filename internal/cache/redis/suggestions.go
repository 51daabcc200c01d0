package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "search:suggest:"
	scanBatch = 500
)

// DefaultTTL is how long a suggestion set stays cached.
const DefaultTTL = 5 * time.Minute

// SuggestionCache stores suggestion sets by normalised query text.
type SuggestionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSuggestionCache creates a cache. A non-positive ttl uses DefaultTTL.
func NewSuggestionCache(client *redis.Client, ttl time.Duration) *SuggestionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SuggestionCache{client: client, ttl: ttl}
}

func key(query string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached suggestions for query. ok is false on a miss.
func (c *SuggestionCache) Get(ctx context.Context, query string) (titles []string, ok bool, err error) {
	data, err := c.client.Get(ctx, key(query)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get suggestions: %w", err)
	}

	if err := json.Unmarshal(data, &titles); err != nil {
		return nil, false, fmt.Errorf("unmarshal suggestions: %w", err)
	}
	return titles, true, nil
}

// Set caches titles for query with the configured TTL.
func (c *SuggestionCache) Set(ctx context.Context, query string, titles []string) error {
	if titles == nil {
		titles = []string{}
	}
	data, err := json.Marshal(titles)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}

	if err := c.client.Set(ctx, key(query), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set suggestions: %w", err)
	}
	return nil
}

// Invalidate deletes every cached suggestion set.
func (c *SuggestionCache) Invalidate(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan suggestions: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del suggestions: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping checks the Redis connection.
func (c *SuggestionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
