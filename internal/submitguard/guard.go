// Package submitguard deduplicates form submissions. A client that retries
// a submission after a network hiccup sends the same X-Idempotency-Key; the
// guard replays the recorded outcome instead of creating a second record.
package submitguard

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/formbridge/model"
)

// Outcome is the recorded result of a completed submission.
type Outcome struct {
	StatusCode int            `json:"status_code"`
	Body       map[string]any `json:"body,omitempty"`
}

// Store provides deduplication for submissions. The key format is
// "submit:{entity}:{key}".
type Store interface {
	// Check looks up a previous outcome by key. If the key exists and the
	// input hash matches, it returns the recorded outcome. If the key
	// exists but the hash differs, it returns a conflict error.
	Check(ctx context.Context, key, inputHash string) (*Outcome, bool, error)

	// Record saves a submission outcome with a TTL.
	Record(ctx context.Context, key, inputHash string, outcome Outcome, ttl time.Duration) error
}

// entry is the stored value for an idempotency key.
type entry struct {
	InputHash string  `json:"input_hash"`
	Outcome   Outcome `json:"outcome"`
}

// Key builds the standard submission idempotency key.
func Key(entityName, idempotencyKey string) string {
	return fmt.Sprintf("submit:%s:%s", entityName, idempotencyKey)
}

// HashPayload fingerprints a serialized payload so a reused key with
// different input is detected as a conflict, not replayed.
func HashPayload(p model.WirePayload) string {
	h := sha256.New()
	for _, f := range p.Fields {
		fmt.Fprintf(h, "%s=%s\n", f.Key, f.Value)
	}
	for _, fp := range p.Files {
		fmt.Fprintf(h, "file:%s:%s:%d\n", fp.Key, fp.Filename, len(fp.Content))
		h.Write(fp.Content)
	}
	if p.Body != nil {
		data, _ := json.Marshal(p.Body)
		h.Write(data)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// --- MemoryStore ---

// MemoryStore is an in-memory Store with TTL support. Suitable for testing
// and single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

type memEntry struct {
	data      entry
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory submission guard store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry)}
}

// Check looks up a recorded outcome. Returns conflict error if input hash
// differs.
func (s *MemoryStore) Check(_ context.Context, key, inputHash string) (*Outcome, bool, error) {
	s.mu.RLock()
	e, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	if e.data.InputHash != inputHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used with different input", key),
		)
	}

	outcome := e.data.Outcome
	return &outcome, true, nil
}

// Record saves an outcome with TTL.
func (s *MemoryStore) Record(_ context.Context, key, inputHash string, outcome Outcome, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memEntry{
		data:      entry{InputHash: inputHash, Outcome: outcome},
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// --- RedisStore ---

// RedisStore is a Redis-backed Store with TTL.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a new Redis-backed submission guard store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Check looks up a recorded outcome in Redis. Returns conflict error if
// input hash differs.
func (s *RedisStore) Check(ctx context.Context, key, inputHash string) (*Outcome, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("unmarshal submission entry %q: %w", key, err)
	}

	if e.InputHash != inputHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used with different input", key),
		)
	}

	return &e.Outcome, true, nil
}

// Record saves an outcome in Redis with TTL.
func (s *RedisStore) Record(ctx context.Context, key, inputHash string, outcome Outcome, ttl time.Duration) error {
	data, err := json.Marshal(entry{InputHash: inputHash, Outcome: outcome})
	if err != nil {
		return fmt.Errorf("marshal submission entry: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// HealthCheck verifies connectivity to Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
