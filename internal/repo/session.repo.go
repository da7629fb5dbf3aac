package repo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront-checkout/internal/domain"
)

type sessionRepo struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewSessionRepo keeps session-scoped cart records in Redis. Entries expire
// after ttl plus up to five minutes of jitter.
func NewSessionRepo(client *redis.Client, ttl time.Duration) TierStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &sessionRepo{client: client, baseTTL: ttl}
}

func (r *sessionRepo) Write(ctx context.Context, key string, blob []byte) error {
	jitter := time.Duration(rand.IntN(5)) * time.Minute
	if err := r.client.Set(ctx, key, blob, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *sessionRepo) Read(ctx context.Context, key string) ([]byte, error) {
	blob, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return blob, nil
}

func (r *sessionRepo) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
