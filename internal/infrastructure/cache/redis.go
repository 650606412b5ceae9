package cache

import (
	"context"
	"fmt"
	"time"

	"promptaat/internal/config"

	"github.com/redis/go-redis/v9"
)

// processedEventTTL is how long a webhook event id is remembered; Stripe
// retries deliveries for up to three days.
const processedEventTTL = 72 * time.Hour

type RedisClient struct {
	*redis.Client
}

func NewRedisClient(cfg *config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{rdb}, nil
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

func (r *RedisClient) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	return r.Ping(ctx).Err()
}

// MarkEventProcessed records a webhook event id and reports whether this is
// the first time the id was seen. Provider delivery is at-least-once, so a
// false result means the event is a redelivery and can be skipped.
func (r *RedisClient) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	key := "billing:webhook:" + eventID
	first, err := r.SetNX(ctx, key, 1, processedEventTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return first, nil
}
