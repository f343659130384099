// Package refdata resolves lookup definitions to label/value option lists,
// fetched from backend services and cached with a per-lookup TTL.
package refdata

import (
	"context"
	"sync"
	"time"

	"github.com/pitabwire/formbridge/model"
)

// Store caches resolved option lists by key.
type Store interface {
	Get(ctx context.Context, key string) ([]model.OptionValue, bool, error)
	Put(ctx context.Context, key string, options []model.OptionValue, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-process Store with TTL expiry and a soft entry cap.
type MemoryStore struct {
	maxEntries int

	mu    sync.RWMutex
	cache map[string]memoryEntry
}

type memoryEntry struct {
	options   []model.OptionValue
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries entries.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		cache:      make(map[string]memoryEntry),
	}
}

// Get returns the cached options if the entry exists and has not expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]model.OptionValue, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.cache[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.options, true, nil
}

// Put stores options under key with the given TTL.
func (s *MemoryStore) Put(_ context.Context, key string, options []model.OptionValue, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cache) >= s.maxEntries {
		s.evictExpired()
	}

	s.cache[key] = memoryEntry{
		options:   options,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key)
	return nil
}

// Len returns the number of entries in the cache. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// evictExpired removes expired entries. Must be called with mu held.
func (s *MemoryStore) evictExpired() {
	now := time.Now()
	for k, v := range s.cache {
		if now.After(v.expiresAt) {
			delete(s.cache, k)
		}
	}
}
