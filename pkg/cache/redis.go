package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "buzz:"

// Redis is a cache backed by a Redis server. Expiry is delegated to Redis
// key TTLs, so a present key is always fresh.
type Redis struct {
	rdb  redis.UniversalClient
	ttls TTLs
}

// NewRedis wraps an existing client.
func NewRedis(rdb redis.UniversalClient, ttls TTLs) *Redis {
	if ttls == nil {
		ttls = DefaultTTLs()
	}
	return &Redis{rdb: rdb, ttls: ttls}
}

// DialRedis parses a redis:// URL, connects and pings the server.
func DialRedis(ctx context.Context, redisURL string, ttls TTLs) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(rdb, ttls), nil
}

func (r *Redis) Get(ctx context.Context, cat Category, key string, dst any) (bool, error) {
	if _, err := r.ttls.lookup(cat); err != nil {
		return false, err
	}

	data, err := r.rdb.Get(ctx, redisKey(cat, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s/%s: %w", cat, key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s cache entry %s: %w", cat, key, err)
	}
	return true, nil
}

func (r *Redis) Put(ctx context.Context, cat Category, key string, value any) error {
	ttl, err := r.ttls.lookup(cat)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s cache entry %s: %w", cat, key, err)
	}
	if err := r.rdb.Set(ctx, redisKey(cat, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", cat, key, err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, cat Category, key string) error {
	if err := r.rdb.Del(ctx, redisKey(cat, key)).Err(); err != nil {
		return fmt.Errorf("redis del %s/%s: %w", cat, key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func redisKey(cat Category, key string) string {
	return redisKeyPrefix + entryKey(cat, key)
}
