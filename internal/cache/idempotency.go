// internal/cache/idempotency.go
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/storefront-backend/internal/config"
)

// DefaultIdempotencyTTL is how long a checkout Idempotency-Key stays claimed.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore records keys that have already been used for a
// non-repeatable request.
type IdempotencyStore interface {
	// MarkProcessed claims key for ttl. It returns false when the key was
	// already claimed and has not expired.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a claim so the request can be retried.
	Release(ctx context.Context, key string) error

	Close() error
}

// NewIdempotencyStore returns a Redis store when Redis is enabled and
// reachable, otherwise an in-memory store.
func NewIdempotencyStore(cfg config.RedisConfig) IdempotencyStore {
	if !cfg.Enabled {
		logrus.Info("Redis disabled, using in-memory idempotency store")
		return NewInMemoryIdempotencyStore()
	}

	store, err := NewRedisIdempotencyStore(cfg)
	if err != nil {
		logrus.WithError(err).Warn("Redis unavailable, falling back to in-memory idempotency store")
		return NewInMemoryIdempotencyStore()
	}

	logrus.WithField("addr", cfg.Addr()).Info("Using Redis idempotency store")
	return store
}

// NewRedisClient builds a client from config and checks the connection.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
