package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sing3demons/jwks-server/internal/config"
)

// ICacheClient is a string cache; a miss returns ErrNotFound.
type ICacheClient interface {
	Close() error
	Ping() error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// NewCache returns a Redis client when configured, else an in-process cache.
func NewCache(cfg *config.RedisConfig) (ICacheClient, error) {
	if cfg != nil && cfg.Enabled() {
		return NewRedisClient(cfg)
	}
	return NewMemoryCache(5 * time.Minute), nil
}

type MemoryCache struct {
	c *gocache.Cache
}

func NewMemoryCache(defaultTTL time.Duration) ICacheClient {
	return &MemoryCache{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *MemoryCache) Close() error {
	m.c.Flush()
	return nil
}

func (m *MemoryCache) Ping() error {
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}
	m.c.Set(key, encoded, expiration)
	return nil
}

func (m *MemoryCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}

func encodeValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode cache value: %w", err)
		}
		return string(b), nil
	}
}

// TruncateValue shortens cached payloads for log lines.
func TruncateValue(s string) string {
	const max = 256
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
