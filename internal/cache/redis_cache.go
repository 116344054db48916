package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maisonvoile/storefront-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	valuePrefix = "cache:val:"
	tagPrefix   = "cache:tag:"
	genPrefix   = "cache:gen:"
)

// RedisTagCache keeps each value under cache:val:<key> and a set of member
// keys under cache:tag:<tag>.
type RedisTagCache struct {
	client *redis.Client
}

func NewRedisTagCache(client *redis.Client) *RedisTagCache {
	return &RedisTagCache{client: client}
}

func (c *RedisTagCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, valuePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisTagCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration, tags ...string) error {
	if value == nil {
		return ErrNilValue
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, valuePrefix+key, raw, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagPrefix+tag, key)
		if ttl > 0 {
			// the tag set outlives its members by at most one ttl
			pipe.Expire(ctx, tagPrefix+tag, ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *RedisTagCache) Generation(ctx context.Context, tag string) (int64, error) {
	gen, err := c.client.Get(ctx, genPrefix+tag).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache generation %s: %w", tag, err)
	}
	return gen, nil
}

// InvalidateTag advances the tag generation before deleting its members, so
// a value set concurrently under the old generation is never read again.
func (c *RedisTagCache) InvalidateTag(ctx context.Context, tag string) error {
	if err := c.client.Incr(ctx, genPrefix+tag).Err(); err != nil {
		return fmt.Errorf("cache generation %s: %w", tag, err)
	}

	keys, err := c.client.SMembers(ctx, tagPrefix+tag).Result()
	if err != nil {
		return fmt.Errorf("cache tag members %s: %w", tag, err)
	}

	toDelete := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		toDelete = append(toDelete, valuePrefix+key)
	}
	toDelete = append(toDelete, tagPrefix+tag)

	if err := c.client.Del(ctx, toDelete...).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", tag, err)
	}

	logger.Debug("Cache tag invalidated", map[string]interface{}{
		"tag":  tag,
		"keys": len(keys),
	})
	return nil
}
