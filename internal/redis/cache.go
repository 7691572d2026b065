package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	SubscriptionCacheTTL = 60 * time.Second // Refreshed on payment success
	ScanCacheTTL         = 5 * time.Minute  // Scan records are immutable
)

// Key prefixes
const (
	subscriptionCachePrefix = "cache:subscription:"
	scanCachePrefix         = "cache:scan:"
)

// CachedSubscription represents a cached subscription entity.
type CachedSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PlanID    string    `json:"plan_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CachedScan represents a cached scan entity.
type CachedScan struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	ImageURL    string  `json:"image_url"`
	IsPlant     bool    `json:"is_plant"`
	DiseaseName string  `json:"disease_name"`
	Confidence  float64 `json:"confidence"`
}

// GetSubscription retrieves a user's subscription from cache.
func (s *CacheStore) GetSubscription(ctx context.Context, userID string) (*CachedSubscription, error) {
	key := subscriptionCachePrefix + userID
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var sub CachedSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// SetSubscription stores a user's subscription in cache.
func (s *CacheStore) SetSubscription(ctx context.Context, sub *CachedSubscription) error {
	key := subscriptionCachePrefix + sub.UserID
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, SubscriptionCacheTTL).Err()
}

// InvalidateSubscription removes a user's subscription from cache. This is
// the "force a full reload of dependent subscription state" effect fired
// after a confirmed payment.
func (s *CacheStore) InvalidateSubscription(ctx context.Context, userID string) error {
	key := subscriptionCachePrefix + userID
	return s.client.Del(ctx, key).Err()
}

// GetScan retrieves a scan from cache.
func (s *CacheStore) GetScan(ctx context.Context, scanID string) (*CachedScan, error) {
	key := scanCachePrefix + scanID
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var scan CachedScan
	if err := json.Unmarshal(data, &scan); err != nil {
		return nil, err
	}
	return &scan, nil
}

// SetScan stores a scan in cache.
func (s *CacheStore) SetScan(ctx context.Context, scan *CachedScan) error {
	key := scanCachePrefix + scan.ID
	data, err := json.Marshal(scan)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ScanCacheTTL).Err()
}
