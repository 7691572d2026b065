package redis

import (
	"context"
	"encoding/json"
	"time"
)

// HistoryStoreInterface defines the interface for the key-value history store.
type HistoryStoreInterface interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	Append(ctx context.Context, key string, entry any) error
	List(ctx context.Context, key string, limit int) ([]json.RawMessage, error)
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquirePaymentLock(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	ReleasePaymentLock(ctx context.Context, userID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ HistoryStoreInterface = (*HistoryStore)(nil)
	_ LockStoreInterface    = (*LockStore)(nil)
)
