package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCache shares summaries between instances. Every written key is tracked
// in a set so Invalidate can drop them without SCAN. A generation counter
// guards writes against concurrent invalidation.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing client. Keys are "<prefix>:<key>"; a
// trailing colon on prefix is ignored.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "stock:summary"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *RedisCache) indexKey() string {
	return c.prefix + ":keys"
}

func (c *RedisCache) generationKey() string {
	return c.prefix + ":gen"
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *RedisCache) Generation(ctx context.Context) (int64, error) {
	gen, err := readGeneration(ctx, c.client, c.generationKey())
	if err != nil {
		return 0, fmt.Errorf("redis read summary generation: %w", err)
	}
	return gen, nil
}

func readGeneration(ctx context.Context, cmd redis.Cmdable, key string) (int64, error) {
	gen, err := cmd.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set writes inside a WATCH on the generation key: if Invalidate bumps it
// before EXEC, the transaction aborts and the value is dropped.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, generation int64) error {
	genKey := c.generationKey()
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, genKey)
		if err != nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(key), value, c.ttl)
			pipe.SAdd(ctx, c.indexKey(), c.key(key))
			pipe.Expire(ctx, c.indexKey(), c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("redis bump summary generation: %w", err)
	}
	keys, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("redis list summary keys: %w", err)
	}
	keys = append(keys, c.indexKey())
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis invalidate summaries: %w", err)
	}
	return nil
}
