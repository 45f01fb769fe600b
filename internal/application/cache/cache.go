package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/anishgillella/serene-sub003/internal/config"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

// NewSessionCache builds the configured backend
func NewSessionCache(ctx context.Context, cfg *config.CacheConfig) (interfaces.SessionCache, error) {
	switch strings.ToLower(cfg.Backend) {
	case "memory", "":
		return NewMemoryCache(), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis cache backend requires cache.redis settings")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisCache(client, cfg.Redis.Prefix, cfg.Redis.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
