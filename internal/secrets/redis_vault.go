package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "flowgraph:secret:"

// RedisVault keeps secrets as plain string keys under a prefix in Redis.
// Values are not encrypted by the vault; rely on Redis ACLs and TLS.
type RedisVault struct {
	client *redis.Client
	prefix string
}

// NewRedisVault connects to redisURL and verifies the connection.
func NewRedisVault(ctx context.Context, redisURL, prefix string) (*RedisVault, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisVaultFromClient(client, prefix), nil
}

// NewRedisVaultFromClient wraps an existing client.
func NewRedisVaultFromClient(client *redis.Client, prefix string) *RedisVault {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisVault{client: client, prefix: prefix}
}

func (v *RedisVault) key(name string) string {
	return v.prefix + name
}

func (v *RedisVault) Resolve(ctx context.Context, key string) ([]byte, error) {
	val, err := v.client.Get(ctx, v.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, key)
		}
		return nil, fmt.Errorf("redis get secret: %w", err)
	}
	return val, nil
}

func (v *RedisVault) Store(ctx context.Context, key string, value []byte) error {
	if err := v.client.Set(ctx, v.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set secret: %w", err)
	}
	return nil
}

func (v *RedisVault) Delete(ctx context.Context, key string) error {
	if err := v.client.Del(ctx, v.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete secret: %w", err)
	}
	return nil
}

func (v *RedisVault) List(ctx context.Context) ([]string, error) {
	var keys []string
	iter := v.client.Scan(ctx, 0, v.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), v.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan secrets: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the underlying client.
func (v *RedisVault) Close() error {
	return v.client.Close()
}
