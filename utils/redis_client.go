package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/dailyink/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

// GetRedis returns a singleton Redis client based on loaded config, or nil when Redis is disabled.
// Callers fall back to in-memory state when it is nil or failing.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get().Redis
		if cfg.Disabled {
			return
		}
		redisClient = redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		// Ping only to report; fallback paths handle an unreachable server
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			Logger.Warn("redis unreachable, using in-memory fallbacks", zap.Error(err))
		}
	})
	return redisClient
}

// SetRedis replaces the singleton. Intended for tests.
func SetRedis(rc *redis.Client) {
	redisOnce.Do(func() {})
	redisClient = rc
}
