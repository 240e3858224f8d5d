package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/imalive/server/config"
)

var (
	redisClient *redis.Client
	redisMu     sync.RWMutex
)

// InitRedis connects to the configured redis server. It returns nil when redis is disabled;
// every helper in this package then falls back to process memory or skips the work.
func InitRedis(cfg config.AppConfig) *redis.Client {
	if !cfg.RedisEnabled() {
		SetRedis(nil)
		return nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// a failed ping is not fatal; callers fail open on redis errors
	if err := rc.Ping(ctx).Err(); err != nil {
		Logger.Warn("redis ping failed", zap.Error(err))
	}
	SetRedis(rc)
	return rc
}

// SetRedis installs rc as the shared client. Tests point it at miniredis.
func SetRedis(rc *redis.Client) {
	redisMu.Lock()
	redisClient = rc
	redisMu.Unlock()
}

// GetRedis returns the shared client, or nil when redis is not configured.
func GetRedis() *redis.Client {
	redisMu.RLock()
	defer redisMu.RUnlock()
	return redisClient
}
