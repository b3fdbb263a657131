// Package cache keeps resolved short-link targets in Redis so the redirect
// path usually avoids a database round trip.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader fetches the authoritative target for a code.
type Loader func(ctx context.Context, code string) (string, error)

// LinkCache is a read-through cache of code -> target URL.  Only
// successful lookups are stored; misses always go back to the loader so a
// link created after a failed lookup resolves immediately.
//
// A nil *LinkCache, or one without a client, simply calls the loader.
type LinkCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
	group  singleflight.Group
}

// NewLinkCache returns a cache storing entries for ttl.
func NewLinkCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *LinkCache {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LinkCache{client: client, ttl: ttl, prefix: "link:", log: log}
}

func (c *LinkCache) key(code string) string { return c.prefix + code }

// Target returns the cached target for code, loading and storing it on a
// miss.  Concurrent misses for the same code share one loader call.
// Redis failures degrade to a direct load.
func (c *LinkCache) Target(ctx context.Context, code string, load Loader) (string, error) {
	if c == nil || c.client == nil {
		return load(ctx, code)
	}

	target, err := c.client.Get(ctx, c.key(code)).Result()
	if err == nil {
		return target, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.log.Warn("link cache read failed", zap.String("code", code), zap.Error(err))
	}

	v, err, _ := c.group.Do(code, func() (any, error) {
		target, err := load(ctx, code)
		if err != nil {
			return "", err
		}
		c.Prime(ctx, code, target)
		return target, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Prime stores target for code.  Failures are logged and otherwise ignored.
func (c *LinkCache) Prime(ctx context.Context, code, target string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, c.key(code), target, c.ttl).Err(); err != nil {
		c.log.Warn("link cache write failed", zap.String("code", code), zap.Error(err))
	}
}
