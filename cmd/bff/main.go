// Package main is the entry point for the formbridge BFF server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/formbridge/internal/backend"
	"github.com/pitabwire/formbridge/internal/config"
	"github.com/pitabwire/formbridge/internal/draft"
	"github.com/pitabwire/formbridge/internal/entity"
	"github.com/pitabwire/formbridge/internal/forms"
	"github.com/pitabwire/formbridge/internal/observability"
	"github.com/pitabwire/formbridge/internal/refdata"
	"github.com/pitabwire/formbridge/internal/submission"
	"github.com/pitabwire/formbridge/internal/submitguard"
	"github.com/pitabwire/formbridge/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

const draftPurgeInterval = 1 * time.Hour

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "formbridge-bff", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Load OpenAPI specs so entity backend bindings can be checked at startup.
	specIndex := backend.NewSpecIndex()
	if err := specIndex.Load(buildSpecSources(cfg.Specs)); err != nil {
		logger.Error("spec index load failed", zap.Error(err))
		return 1
	}

	// Load entity definitions, validate against the spec index, build registry.
	loader := entity.NewLoader()
	defs, err := loader.LoadAll(cfg.Definitions.Directories)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}

	verrs := entity.NewValidator().Validate(defs, specIndex)
	if len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		logger.Error("definition validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	registry := entity.NewRegistry(defs)

	client := backend.New(cfg.Services, logger)

	lookupStore, lookupChecker, lookupCloser, err := buildLookupStore(cfg.Lookup, logger)
	if err != nil {
		logger.Error("lookup store initialization failed", zap.Error(err))
		return 1
	}
	lookups := refdata.NewProvider(registry, client, lookupStore, cfg.Lookup.TTL, logger)

	draftStore, draftChecker, draftCloser, err := buildDraftStore(ctx, cfg.Drafts, logger)
	if err != nil {
		logger.Error("draft store initialization failed", zap.Error(err))
		return 1
	}

	guardStore, guardChecker, guardCloser := buildGuardStore(cfg.Submit, logger)

	formProvider := forms.NewProvider(registry, client, lookups, logger)

	var procOpts []submission.Option
	if guardStore != nil {
		procOpts = append(procOpts, submission.WithGuard(guardStore, cfg.Submit.DefaultTTL))
	}
	procOpts = append(procOpts, submission.WithMetrics(metrics))
	processor := submission.NewProcessor(registry, client, logger, procOpts...)

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)

	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return len(registry.AllEntities()) > 0 },
		LookupStore:       lookupChecker,
		DraftStore:        draftChecker,
		SubmitStore:       guardChecker,
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Forms:        formProvider,
		Submissions:  processor,
		Lookups:      lookups,
		Drafts:       draftStore,
		Readiness:    readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	if draftStore != nil {
		go runDraftPurger(bgCtx, draftStore, metrics, logger)
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", len(defs)),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()

	for _, closer := range []func(){lookupCloser, draftCloser, guardCloser} {
		if closer != nil {
			closer()
		}
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildSpecSources converts config spec sources to backend.SpecSource.
func buildSpecSources(specsCfg config.SpecsConfig) []backend.SpecSource {
	sources := make([]backend.SpecSource, len(specsCfg.Sources))
	for i, s := range specsCfg.Sources {
		specPath := s.SpecFile
		if specsCfg.Directory != "" && !filepath.IsAbs(specPath) {
			specPath = filepath.Join(specsCfg.Directory, specPath)
		}
		sources[i] = backend.SpecSource{
			ServiceID: s.ServiceID,
			SpecPath:  specPath,
		}
	}
	return sources
}

// buildLookupStore creates the reference-data cache store based on config.
func buildLookupStore(cfg config.LookupCacheConfig, logger *zap.Logger) (refdata.Store, observability.HealthChecker, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory lookup cache")
		return refdata.NewMemoryStore(cfg.MaxEntries), nil, nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, nil, fmt.Errorf("lookup cache: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		store := refdata.NewRedisStore(client)
		return store, store, func() { client.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported lookup cache driver: %q", cfg.Driver)
	}
}

// buildDraftStore creates the draft store based on config. Returns a nil
// store if drafts are disabled, which also disables the draft routes.
func buildDraftStore(ctx context.Context, cfg config.DraftsConfig, logger *zap.Logger) (draft.Store, observability.HealthChecker, func(), error) {
	if !cfg.Enabled {
		return nil, nil, nil, nil
	}

	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory draft store")
		return draft.NewMemoryStore(), nil, nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" && cfg.DSNEnv != "" {
			return nil, nil, nil, fmt.Errorf("draft store: %s environment variable not set", cfg.DSNEnv)
		}
		if dsn == "" {
			logger.Warn("draft store DSN not configured, using in-memory store")
			return draft.NewMemoryStore(), nil, nil, nil
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("draft store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("draft store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("draft store: ping: %w", err)
		}

		store := draft.NewPgStore(pool)
		return store, store, pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported draft store driver: %q", cfg.Driver)
	}
}

// buildGuardStore creates the submission idempotency store based on config.
func buildGuardStore(cfg config.SubmitConfig, logger *zap.Logger) (submitguard.Store, observability.HealthChecker, func()) {
	if !cfg.IdempotencyEnabled {
		return nil, nil, nil
	}

	switch cfg.Driver {
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			logger.Warn("submit guard address not configured, using in-memory store")
			return submitguard.NewMemoryStore(), nil, nil
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		store := submitguard.NewRedisStore(client)
		return store, store, func() { client.Close() }
	default:
		logger.Info("using in-memory submission guard")
		return submitguard.NewMemoryStore(), nil, nil
	}
}

// runDraftPurger periodically removes expired drafts.
func runDraftPurger(ctx context.Context, store draft.Store, metrics *observability.Metrics, logger *zap.Logger) {
	ticker := time.NewTicker(draftPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := store.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Error("draft purge failed", zap.Error(err))
				continue
			}
			if count > 0 {
				metrics.RecordDraftsPurged(count)
				logger.Info("purged expired drafts", zap.Int("count", count))
			}
		}
	}
}
