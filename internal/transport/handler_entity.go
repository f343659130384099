package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/formbridge/internal/forms"
	"github.com/pitabwire/formbridge/model"
)

func handleListEntities(provider *forms.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"entities": provider.ListEntities(),
		})
	}
}

func handleGetForm(provider *forms.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entityName := chi.URLParam(r, "entity")

		desc, err := provider.Descriptor(r.Context(), rctx, entityName)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleGetRecordForm(provider *forms.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entityName := chi.URLParam(r, "entity")
		recordID := chi.URLParam(r, "recordId")

		form, err := provider.RecordForm(r.Context(), rctx, entityName, recordID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, form)
	}
}
