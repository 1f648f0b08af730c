package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"event-ticketing/internal/config"
	"event-ticketing/internal/logger"
)

// NewRedisClient connects to Redis and checks the connection before the session store uses it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		log.Error("AUTH", fmt.Sprintf("Failed to connect to Redis at %s: %v", cfg.Addr, err))
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Info("AUTH", fmt.Sprintf("Connected to Redis at %s for sessions", cfg.Addr))
	return client, nil
}
