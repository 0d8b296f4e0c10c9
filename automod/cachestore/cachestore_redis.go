package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

var redisCachePrefix string = "warden/cache/"

// Redis-backed store, with a small in-process TinyLFU in front of it for Get. Claim goes straight to redis, so it holds across processes.
type RedisCacheStore struct {
	Data   *cache.Cache
	Client *redis.Client
	TTL    time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

func NewRedisCacheStore(redisURL string, ttl time.Duration) (*RedisCacheStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if err := rdb.Ping(context.TODO()).Err(); err != nil {
		return nil, err
	}
	return &RedisCacheStore{
		Data: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(10_000, ttl),
		}),
		Client: rdb,
		TTL:    ttl,
	}, nil
}

func redisCacheKey(name, key string) string {
	return redisCachePrefix + name + "/" + key
}

func redisClaimKey(name, key string) string {
	return redisCacheKey(name, key) + "/claim"
}

func (s *RedisCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	var val string
	err := s.Data.Get(ctx, redisCacheKey(name, key), &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, name, key string, val string) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisCacheKey(name, key),
		Value: val,
		TTL:   s.TTL,
	})
}

// Also drops any claim on the key.
func (s *RedisCacheStore) Purge(ctx context.Context, name, key string) error {
	err := s.Data.Delete(ctx, redisCacheKey(name, key))
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return err
	}
	return s.Client.Del(ctx, redisClaimKey(name, key)).Err()
}

// Claims are plain redis keys (SET NX with the store TTL), not msgpack cache items.
func (s *RedisCacheStore) Claim(ctx context.Context, name, key string) (bool, error) {
	return s.Client.SetNX(ctx, redisClaimKey(name, key), "1", s.TTL).Result()
}
