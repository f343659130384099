package draft

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/formbridge/model"
)

// MemoryStore is an in-memory Store for testing and single-instance
// deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]model.Draft // key: draft ID
}

// NewMemoryStore creates a new in-memory draft store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]model.Draft)}
}

// Put inserts or replaces a draft.
func (s *MemoryStore) Put(_ context.Context, d model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.drafts[d.ID]; exists && existing.SubjectID != d.SubjectID {
		return model.NewConflictError(fmt.Sprintf("draft %q belongs to another subject", d.ID))
	}
	s.drafts[d.ID] = d
	return nil
}

// Get retrieves a draft by ID, scoped to the owning subject.
func (s *MemoryStore) Get(_ context.Context, subjectID, draftID string) (model.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.drafts[draftID]
	if !exists || d.SubjectID != subjectID {
		return model.Draft{}, model.NewNotFoundError(fmt.Sprintf("draft %q not found", draftID))
	}
	return d, nil
}

// List returns the subject's drafts for one entity, most recently updated
// first.
func (s *MemoryStore) List(_ context.Context, subjectID, entity string) ([]model.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Draft
	for _, d := range s.drafts {
		if d.SubjectID != subjectID || d.Entity != entity {
			continue
		}
		result = append(result, d)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// Delete removes a draft, scoped to the owning subject.
func (s *MemoryStore) Delete(_ context.Context, subjectID, draftID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, exists := s.drafts[draftID]
	if !exists || d.SubjectID != subjectID {
		return model.NewNotFoundError(fmt.Sprintf("draft %q not found", draftID))
	}
	delete(s.drafts, draftID)
	return nil
}

// PurgeExpired removes drafts past their expiry.
func (s *MemoryStore) PurgeExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int
	for id, d := range s.drafts {
		if !d.ExpiresAt.IsZero() && d.ExpiresAt.Before(cutoff) {
			delete(s.drafts, id)
			purged++
		}
	}
	return purged, nil
}

// Len returns the total number of drafts. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}
