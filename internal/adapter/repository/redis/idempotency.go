package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/reconledger/internal/usecase"
)

// IdempotencyStore implements usecase.IdempotencyStore using Redis. Keys arrive scoped
// by method and path and are stored hashed, so a long client key never bloats Redis.
type IdempotencyStore struct {
	client *redis.Client
	prefix string
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		prefix: "reconledger:idempotency:",
	}
}

func (s *IdempotencyStore) redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return s.prefix + hex.EncodeToString(sum[:])
}

// CheckAndSet claims key with SET NX. When the key is already held it returns true and
// the stored response, which is usecase.IdempotencyPendingMarker while the first request
// runs.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	fullKey := s.redisKey(key)

	var value any = usecase.IdempotencyPendingMarker
	if response != nil {
		value = response
	}

	set, err := s.client.SetNX(ctx, fullKey, value, ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if set {
		return false, nil, nil
	}

	existing, err := s.client.Get(ctx, fullKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET; let the caller proceed
			return false, nil, nil
		}
		return false, nil, err
	}
	return true, existing, nil
}

// Update stores the final response under a claimed key.
func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.redisKey(key), response, ttl).Err()
}

// Release drops a claimed key so a failed request can be retried with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.redisKey(key)).Err()
}
