package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/student-lifecycle-api/pkg/config"
)

const keyPrefix = "lifecycle"

// NewRedis returns a configured Redis client that has answered a ping.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// Key joins parts under the service prefix, e.g. lifecycle:summary:2025-2026:main.
// Empty parts are written as "all" so keys stay positional.
func Key(parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, keyPrefix)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			p = "all"
		}
		segments = append(segments, strings.ToLower(p))
	}
	return strings.Join(segments, ":")
}
