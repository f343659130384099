package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pitabwire/formbridge/internal/draft"
	"github.com/pitabwire/formbridge/internal/observability"
	"github.com/pitabwire/formbridge/model"
)

// draftHandlers groups the draft CRUD endpoints around one store and TTL.
type draftHandlers struct {
	store   draft.Store
	ttl     time.Duration
	metrics *observability.Metrics
}

func newDraftHandlers(store draft.Store, ttl time.Duration, metrics *observability.Metrics) *draftHandlers {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &draftHandlers{store: store, ttl: ttl, metrics: metrics}
}

type saveDraftRequest struct {
	ID       string          `json:"id"`
	RecordID string          `json:"record_id"`
	Form     model.FormModel `json:"form"`
}

func (h *draftHandlers) save(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		WriteError(w, model.NewUnauthorizedError("missing request context"))
		return
	}
	entityName := chi.URLParam(r, "entity")

	var req saveDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}

	now := time.Now().UTC()
	d := model.Draft{
		ID:        req.ID,
		Entity:    entityName,
		SubjectID: rctx.SubjectID,
		RecordID:  req.RecordID,
		Form:      req.Form,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(h.ttl),
	}

	status := http.StatusOK
	if d.ID == "" {
		d.ID = uuid.NewString()
		status = http.StatusCreated
	} else if existing, err := h.store.Get(r.Context(), rctx.SubjectID, d.ID); err == nil {
		d.CreatedAt = existing.CreatedAt
	}

	if err := h.store.Put(r.Context(), d); err != nil {
		WriteError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordDraftSave(entityName)
	}
	WriteJSON(w, status, d)
}

func (h *draftHandlers) list(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		WriteError(w, model.NewUnauthorizedError("missing request context"))
		return
	}
	entityName := chi.URLParam(r, "entity")

	drafts, err := h.store.List(r.Context(), rctx.SubjectID, entityName)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
}

func (h *draftHandlers) get(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		WriteError(w, model.NewUnauthorizedError("missing request context"))
		return
	}
	draftID := chi.URLParam(r, "draftId")

	d, err := h.store.Get(r.Context(), rctx.SubjectID, draftID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, d)
}

func (h *draftHandlers) remove(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		WriteError(w, model.NewUnauthorizedError("missing request context"))
		return
	}
	draftID := chi.URLParam(r, "draftId")

	if err := h.store.Delete(r.Context(), rctx.SubjectID, draftID); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
