package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/formbridge/internal/config"
	"github.com/pitabwire/formbridge/internal/draft"
	"github.com/pitabwire/formbridge/internal/forms"
	"github.com/pitabwire/formbridge/internal/observability"
	"github.com/pitabwire/formbridge/internal/refdata"
	"github.com/pitabwire/formbridge/internal/submission"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Authenticate func(http.Handler) http.Handler

	Forms       *forms.Provider
	Submissions *submission.Processor
	Lookups     *refdata.Provider
	Drafts      draft.Store

	Readiness observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	// Authenticated routes get the full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	maxUpload := deps.Config.Server.MaxUploadBytes

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Get("/ui/entities", handleListEntities(deps.Forms))
		r.Get("/ui/entities/{entity}/form", handleGetForm(deps.Forms))
		r.Get("/ui/entities/{entity}/records/{recordId}/form", handleGetRecordForm(deps.Forms))
		r.Post("/ui/entities/{entity}/records", handleCreateRecord(deps.Submissions, maxUpload))
		r.Post("/ui/entities/{entity}/records/{recordId}", handleUpdateRecord(deps.Submissions, maxUpload))
		r.Put("/ui/entities/{entity}/records/{recordId}", handleUpdateRecord(deps.Submissions, maxUpload))
		r.Get("/ui/entities/{entity}/view", handleGetView(deps.Forms))
		r.Get("/ui/entities/{entity}/export", handleExport(deps.Forms))
		r.Get("/ui/lookups/{lookupId}", handleLookup(deps.Lookups, deps.Metrics))

		if deps.Drafts != nil {
			drafts := newDraftHandlers(deps.Drafts, deps.Config.Drafts.TTL, deps.Metrics)
			r.Get("/ui/entities/{entity}/drafts", drafts.list)
			r.Post("/ui/entities/{entity}/drafts", drafts.save)
			r.Get("/ui/drafts/{draftId}", drafts.get)
			r.Delete("/ui/drafts/{draftId}", drafts.remove)
		}
	})

	return r
}
