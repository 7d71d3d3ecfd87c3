package redis

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Set sets a key with an optional expiration
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	err := c.rdb.Set(ctx, key, value, expiration).Err()
	if err != nil {
		c.logger.Error("redis set failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return err
}

// Get returns the value for a key
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil && !IsNil(err) {
		c.logger.Error("redis get failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return val, err
}

// Del deletes keys
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.Error("redis del failed",
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}
	return n, err
}

// DelPattern deletes all keys matching a glob pattern using SCAN.
// Never uses KEYS, which would block the server on large keyspaces.
func (c *Client) DelPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	var cursor uint64

	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.Error("redis scan failed",
				zap.String("pattern", pattern),
				zap.Error(err),
			)
			return deleted, err
		}

		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

// Exists checks whether keys exist
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Exists(ctx, keys...).Result()
	if err != nil {
		c.logger.Error("redis exists failed",
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}
	return n, err
}

// Expire sets a key expiration
func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	ok, err := c.rdb.Expire(ctx, key, expiration).Result()
	if err != nil {
		c.logger.Error("redis expire failed",
			zap.String("key", key),
			zap.Duration("expiration", expiration),
			zap.Error(err),
		)
	}
	return ok, err
}

// TTL returns the remaining time to live of a key
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis ttl failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return ttl, err
}

// Incr increments a key
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	val, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis incr failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return val, err
}

// SetNX sets a key only if it does not exist
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, expiration).Result()
	if err != nil {
		c.logger.Error("redis setnx failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return ok, err
}
