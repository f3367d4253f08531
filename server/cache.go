package server

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chaos-io/cutout/asset"
	"github.com/chaos-io/cutout/config"
)

const cachePrefix = "cutout:"

// Cache 以输入内容 md5 为键缓存抠图结果
type Cache interface {
	Get(ctx context.Context, key string) (*asset.Asset, error)
	Set(ctx context.Context, key string, a *asset.Asset) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(cfg *config.RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisCacheWithClient(client, cfg.TTL)
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (s *RedisCache) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get 缓存未命中返回 (nil, nil)
func (s *RedisCache) Get(ctx context.Context, key string) (*asset.Asset, error) {
	data, err := s.client.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return &asset.Asset{Name: asset.ResultName, MIMEType: asset.PNGMIMEType, Data: data}, nil
}

func (s *RedisCache) Set(ctx context.Context, key string, a *asset.Asset) error {
	return s.client.Set(ctx, cachePrefix+key, a.Data, s.ttl).Err()
}

func (s *RedisCache) Close() error {
	return s.client.Close()
}
