package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/formbridge/internal/observability"
	"github.com/pitabwire/formbridge/internal/refdata"
	"github.com/pitabwire/formbridge/model"
)

func handleLookup(provider *refdata.Provider, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		lookupID := chi.URLParam(r, "lookupId")
		query := r.URL.Query().Get("q")

		options, cached, err := provider.Options(r.Context(), rctx, lookupID, query)
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			if cached {
				metrics.RecordLookupCacheHit(lookupID)
			} else {
				metrics.RecordLookupCacheMiss(lookupID)
			}
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"options": options,
			"cached":  cached,
		})
	}
}
