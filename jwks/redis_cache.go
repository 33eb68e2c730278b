package jwks

import (
	"context"
	"errors"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/redis/go-redis/v9"
)

// RedisCache is a KeyCache shared between replicas through Redis.
// Keys are stored as JWK JSON under "<prefix><kid>" with the cache TTL.
type RedisCache struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig holds configuration for RedisCache
type RedisConfig struct {
	Addr      string
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisCache connects to Redis and verifies the connection with a ping
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisCache(client, cfg), nil
}

func newRedisCache(client redis.UniversalClient, cfg RedisConfig) *RedisCache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "auth0-api:jwks:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &RedisCache{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

func (c *RedisCache) redisKey(kid string) string { return c.keyPrefix + kid }

// Get implements KeyCache
func (c *RedisCache) Get(ctx context.Context, kid string) (SigningKey, bool, error) {
	raw, err := c.client.Get(ctx, c.redisKey(kid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SigningKey{}, false, nil
	}
	if err != nil {
		return SigningKey{}, false, fmt.Errorf("redis get %s: %w", kid, err)
	}

	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return SigningKey{}, false, fmt.Errorf("decode cached key %s: %w", kid, err)
	}
	return signingKeyFromJWK(jwk), true, nil
}

// Put implements KeyCache
func (c *RedisCache) Put(ctx context.Context, keys ...SigningKey) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, key := range keys {
		jwk := jose.JSONWebKey{
			Key:       key.Key,
			KeyID:     key.KeyID,
			Algorithm: key.Algorithm,
			Use:       key.Use,
		}
		raw, err := jwk.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode key %s: %w", key.KeyID, err)
		}
		pipe.Set(ctx, c.redisKey(key.KeyID), raw, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisCache) Close() error { return c.client.Close() }

// Ping checks that Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
