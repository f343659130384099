package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/formbridge/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5.
//
// Schema:
//
//	CREATE TABLE drafts (
//	    id          TEXT PRIMARY KEY,
//	    entity      TEXT NOT NULL,
//	    subject_id  TEXT NOT NULL,
//	    record_id   TEXT NOT NULL DEFAULT '',
//	    form        JSONB NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL,
//	    expires_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX drafts_subject_entity ON drafts (subject_id, entity, updated_at DESC);
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL draft store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Put inserts or replaces a draft.
func (s *PgStore) Put(ctx context.Context, d model.Draft) error {
	formJSON, err := json.Marshal(d.Form)
	if err != nil {
		return fmt.Errorf("marshal draft form: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO drafts (id, entity, subject_id, record_id, form, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			form = EXCLUDED.form,
			record_id = EXCLUDED.record_id,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
		WHERE drafts.subject_id = EXCLUDED.subject_id`,
		d.ID, d.Entity, d.SubjectID, d.RecordID, formJSON, d.CreatedAt, d.UpdatedAt, d.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

// Get retrieves a draft by ID, scoped to the owning subject.
func (s *PgStore) Get(ctx context.Context, subjectID, draftID string) (model.Draft, error) {
	var d model.Draft
	var formJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, entity, subject_id, record_id, form, created_at, updated_at, expires_at
		FROM drafts
		WHERE id = $1 AND subject_id = $2`,
		draftID, subjectID,
	).Scan(&d.ID, &d.Entity, &d.SubjectID, &d.RecordID, &formJSON, &d.CreatedAt, &d.UpdatedAt, &d.ExpiresAt)
	if err == pgx.ErrNoRows {
		return model.Draft{}, model.NewNotFoundError(fmt.Sprintf("draft %q not found", draftID))
	}
	if err != nil {
		return model.Draft{}, fmt.Errorf("query draft: %w", err)
	}

	if err := json.Unmarshal(formJSON, &d.Form); err != nil {
		return model.Draft{}, fmt.Errorf("unmarshal draft form: %w", err)
	}
	return d, nil
}

// List returns the subject's drafts for one entity, most recently updated
// first.
func (s *PgStore) List(ctx context.Context, subjectID, entity string) ([]model.Draft, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity, subject_id, record_id, form, created_at, updated_at, expires_at
		FROM drafts
		WHERE subject_id = $1 AND entity = $2
		ORDER BY updated_at DESC`,
		subjectID, entity,
	)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	var drafts []model.Draft
	for rows.Next() {
		var d model.Draft
		var formJSON []byte
		if err := rows.Scan(&d.ID, &d.Entity, &d.SubjectID, &d.RecordID, &formJSON,
			&d.CreatedAt, &d.UpdatedAt, &d.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		if err := json.Unmarshal(formJSON, &d.Form); err != nil {
			return nil, fmt.Errorf("unmarshal draft form: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// Delete removes a draft, scoped to the owning subject.
func (s *PgStore) Delete(ctx context.Context, subjectID, draftID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM drafts WHERE id = $1 AND subject_id = $2`,
		draftID, subjectID,
	)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("draft %q not found", draftID))
	}
	return nil
}

// PurgeExpired removes drafts past their expiry.
func (s *PgStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM drafts WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge drafts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// HealthCheck verifies connectivity to Postgres.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
