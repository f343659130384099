package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/formbridge/internal/forms"
	"github.com/pitabwire/formbridge/internal/view"
	"github.com/pitabwire/formbridge/model"
)

func handleGetView(provider *forms.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entityName := chi.URLParam(r, "entity")

		dv, err := provider.ViewData(r.Context(), rctx, entityName, parseCriteria(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"records": dv.PageData,
			"total":   dv.Total,
		})
	}
}

func handleExport(provider *forms.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		entityName := chi.URLParam(r, "entity")

		filename, data, err := provider.ExportCSV(r.Context(), rctx, entityName, parseCriteria(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// parseCriteria builds view criteria from query parameters. Filter
// dimensions use the filter[field]=value form and may repeat for
// multi-select; special filters repeat under the special parameter.
func parseCriteria(r *http.Request) view.Criteria {
	q := r.URL.Query()
	c := view.Criteria{
		Query:   q.Get("q"),
		Special: q["special"],
		Sort: model.SortSpec{
			Field: q.Get("sort"),
			Dir:   q.Get("dir"),
		},
	}

	for key, values := range q {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		field := key[len("filter[") : len(key)-1]
		if field == "" || len(values) == 0 {
			continue
		}
		if c.Filters == nil {
			c.Filters = make(map[string][]string)
		}
		c.Filters[field] = values
	}

	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		c.Page.Index = page
	}
	if size, err := strconv.Atoi(q.Get("size")); err == nil {
		c.Page.Size = size
	}
	return c
}
