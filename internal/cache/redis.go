// Package cache holds the Redis client and the locks and read caches built on it.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"go_agentos/internal/config"
)

// Client is the process-wide Redis client, nil when Redis is disabled
var Client *redis.Client

// InitRedis connects Client and verifies it with a PING
func InitRedis(cfg config.RedisConfig) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	Client = rdb
	logrus.WithFields(logrus.Fields{"addr": cfg.Addr, "db": cfg.DB}).Info("Redis connected successfully")
	return nil
}

// Close closes the Redis connection
func Close() error {
	if Client == nil {
		return nil
	}
	err := Client.Close()
	Client = nil
	return err
}
