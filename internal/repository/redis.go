package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"olympspa/internal/config"
	"olympspa/internal/models"

	"github.com/redis/go-redis/v9"
)

const ledgerKeyPrefix = "ledger:event:"

// RedisLedger keeps confirmation outcomes keyed by gateway event id so
// every API process sees the same delivery history.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{
		client: client,
		ttl:    ttl,
	}
}

func ledgerKey(eventID string) string {
	return ledgerKeyPrefix + eventID
}

func (r *RedisLedger) Lookup(ctx context.Context, eventID string) (models.ConfirmationOutcome, bool, error) {
	if r.client == nil {
		return "", false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, ledgerKey(eventID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get ledger entry from redis: %w", err)
	}
	return models.ConfirmationOutcome(val), true, nil
}

func (r *RedisLedger) Record(ctx context.Context, eventID string, outcome models.ConfirmationOutcome) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, ledgerKey(eventID), string(outcome), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set ledger entry in redis: %w", err)
	}
	return nil
}

// Ping checks that the Redis server answers.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close releases the client; a nil client is a no-op.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
