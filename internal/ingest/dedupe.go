// Package ingest handles inbound webhook concerns that sit in front of
// trace recording, currently delivery deduplication.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupeStore suppresses duplicate webhook deliveries. Upstream systems
// redeliver on timeout, and a redelivered payload must not start a second
// trace. The key format is "dedupe:{system}:{digest}".
type DedupeStore interface {
	// Seen marks a delivery and reports whether it was already marked
	// within the TTL window. The first caller for a key gets false.
	Seen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// DeliveryKey builds the standard dedupe key from the payload digest.
func DeliveryKey(system string, body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("dedupe:%s:%s", system, hex.EncodeToString(sum[:]))
}

// --- MemoryDedupeStore ---

// MemoryDedupeStore is an in-memory DedupeStore with TTL support. Suitable
// for testing and single-instance deployments.
type MemoryDedupeStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryDedupeStore creates an in-memory dedupe store.
func NewMemoryDedupeStore() *MemoryDedupeStore {
	return &MemoryDedupeStore{entries: make(map[string]time.Time)}
}

// Seen marks key and reports whether an unexpired mark already existed.
// Expired entries are swept on each call so the map stays bounded by the
// TTL window rather than the process lifetime.
func (s *MemoryDedupeStore) Seen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, expiresAt := range s.entries {
		if !now.Before(expiresAt) {
			delete(s.entries, k)
		}
	}

	if _, ok := s.entries[key]; ok {
		return true, nil
	}
	s.entries[key] = now.Add(ttl)
	return false, nil
}

// Len returns the number of unexpired entries. For testing.
func (s *MemoryDedupeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// --- RedisDedupeStore ---

// RedisDedupeStore is a Redis-backed DedupeStore for multi-instance
// deployments, using SET NX with expiry as the atomic mark.
type RedisDedupeStore struct {
	client redis.Cmdable
}

// NewRedisDedupeStore creates a Redis-backed dedupe store.
func NewRedisDedupeStore(client redis.Cmdable) *RedisDedupeStore {
	return &RedisDedupeStore{client: client}
}

// Seen marks key in Redis and reports whether it already existed.
func (s *RedisDedupeStore) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	created, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", key, err)
	}
	return !created, nil
}

// HealthCheck verifies Redis connectivity.
func (s *RedisDedupeStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
