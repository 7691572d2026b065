package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// HistoryStore is the string-keyed, JSON-serialized preference and history
// store used by surrounding features for notification lists and timeline
// entries.
type HistoryStore struct {
	client *redis.Client
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(client *redis.Client) *HistoryStore {
	return &HistoryStore{client: client}
}

const (
	historyMaxEntries = 100
	historyTTL        = 30 * 24 * time.Hour
)

// Put stores a JSON-serialized value under the given key.
func (s *HistoryStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// Get loads the value stored under key into dest. Returns false when the
// key does not exist.
func (s *HistoryStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Append prepends a JSON-serialized entry to the list stored under key,
// keeping only the newest historyMaxEntries entries.
func (s *HistoryStore) Append(ctx context.Context, key string, entry any) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, historyMaxEntries-1)
	pipe.Expire(ctx, key, historyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns up to limit newest entries stored under key as raw JSON.
func (s *HistoryStore) List(ctx context.Context, key string, limit int) ([]json.RawMessage, error) {
	if limit <= 0 || limit > historyMaxEntries {
		limit = historyMaxEntries
	}

	values, err := s.client.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		entries = append(entries, json.RawMessage(v))
	}
	return entries, nil
}
