package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/reconciler/internal/infrastructure/config"
	"github.com/cassiomorais/reconciler/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// NewClient creates a Redis client and waits for the server to answer a
// PING, backing off linearly between connection attempts.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	policy := connectPolicy(cfg.ConnectRetries, cfg.ConnectRetryDelay)
	err := retry.Do(ctx, policy, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", policy.Attempts, err)
	}

	return client, nil
}

func connectPolicy(attempts int, delay time.Duration) retry.Policy {
	if attempts <= 0 {
		attempts = 5
	}
	if delay <= 0 {
		delay = time.Second
	}
	backoff := make([]time.Duration, attempts-1)
	for i := range backoff {
		backoff[i] = time.Duration(i+1) * delay
	}
	return retry.Policy{Attempts: uint(attempts), Backoff: backoff}
}
