// Package draft persists unsubmitted form state per subject, with TTL
// expiry. Memory and PostgreSQL backends are provided.
package draft

import (
	"context"
	"time"

	"github.com/pitabwire/formbridge/model"
)

// Store persists drafts. All reads are scoped to the owning subject; one
// subject can never see another's drafts.
type Store interface {
	// Put inserts or replaces a draft.
	Put(ctx context.Context, d model.Draft) error

	// Get retrieves a draft by ID for the given subject.
	Get(ctx context.Context, subjectID, draftID string) (model.Draft, error)

	// List returns the subject's drafts for one entity, most recently
	// updated first.
	List(ctx context.Context, subjectID, entity string) ([]model.Draft, error)

	// Delete removes a draft.
	Delete(ctx context.Context, subjectID, draftID string) error

	// PurgeExpired removes drafts past their expiry and reports how many.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int, error)
}
