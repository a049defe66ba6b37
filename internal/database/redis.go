package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sing3demons/jwks-server/internal/config"
	"github.com/sing3demons/jwks-server/pkg/logAction"
	"github.com/sing3demons/jwks-server/pkg/logger"
	"github.com/sing3demons/jwks-server/pkg/mlog"
)

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(cfg *config.RedisConfig) (ICacheClient, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, errors.New("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: rdb}, nil
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	log := mlog.L(ctx)
	start := time.Now()

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "redis",
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, "redis GET"), map[string]any{
		"key": key,
	})

	val, err := c.client.Get(ctx, key).Result()

	var result map[string]any
	switch {
	case errors.Is(err, redis.Nil):
		result = map[string]any{"data": nil}
		err = ErrNotFound
	case err != nil:
		result = map[string]any{"error": err.Error()}
	default:
		result = map[string]any{"data": TruncateValue(val)}
	}

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   "redis",
		ResponseTime: time.Since(start).Milliseconds(),
	}).Debug(logAction.DB_RESPONSE(logAction.DB_READ, "redis GET"), result)
	return val, err
}

func (c *RedisClient) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	log := mlog.L(ctx)
	start := time.Now()

	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "redis",
	}).Debug(logAction.DB_REQUEST(logAction.DB_CREATE, "redis SET"), map[string]any{
		"key":        key,
		"value":      TruncateValue(encoded),
		"expiration": expiration.String(),
	})

	err = c.client.Set(ctx, key, encoded, expiration).Err()

	result := map[string]any{"data": "OK"}
	if err != nil {
		result = map[string]any{"error": err.Error()}
	}
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   "redis",
		ResponseTime: time.Since(start).Milliseconds(),
	}).Debug(logAction.DB_RESPONSE(logAction.DB_CREATE, "redis SET"), result)

	return err
}

func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	log := mlog.L(ctx)
	start := time.Now()

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "redis",
	}).Debug(logAction.DB_REQUEST(logAction.DB_DELETE, "redis DEL"), map[string]any{
		"keys": keys,
	})

	err := c.client.Del(ctx, keys...).Err()

	result := map[string]any{"data": "OK"}
	if err != nil {
		result = map[string]any{"error": err.Error()}
	}
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   "redis",
		ResponseTime: time.Since(start).Milliseconds(),
	}).Debug(logAction.DB_RESPONSE(logAction.DB_DELETE, "redis DEL"), result)
	return err
}
