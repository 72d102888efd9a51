// Package cache holds the listing cache used in front of the blob store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss reports that a key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Redis struct {
	cli    *redis.Client
	prefix string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	r := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisFromClient(r, opts.Prefix), nil
}

func NewRedisFromClient(cli *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "tinytalk"
	}
	return &Redis{cli: cli, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + ":" + k }

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	s, err := r.cli.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return s, err
}

func (r *Redis) Set(ctx context.Context, key string, val string, ttl time.Duration) error {
	return r.cli.Set(ctx, r.key(key), val, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.cli.Del(ctx, full...).Err()
}

func (r *Redis) Close() error {
	return r.cli.Close()
}
