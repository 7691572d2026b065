package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquirePaymentLock attempts to acquire the single-active-session lock for
// the given user. Returns true if the lock was acquired, false if another
// payment attempt already holds it.
func (s *LockStore) AcquirePaymentLock(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:payment:%s", userID)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleasePaymentLock releases the payment lock for the given user.
func (s *LockStore) ReleasePaymentLock(ctx context.Context, userID string) error {
	key := fmt.Sprintf("lock:payment:%s", userID)

	return s.client.Del(ctx, key).Err()
}
