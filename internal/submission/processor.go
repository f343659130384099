// Package submission orchestrates the full submit pipeline for an entity:
// local validation, payload serialization, idempotency guarding, backend
// dispatch, and server error translation.
package submission

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/formbridge/internal/backend"
	"github.com/pitabwire/formbridge/internal/entity"
	"github.com/pitabwire/formbridge/internal/mapper"
	"github.com/pitabwire/formbridge/internal/observability"
	"github.com/pitabwire/formbridge/internal/payload"
	"github.com/pitabwire/formbridge/internal/submitguard"
	"github.com/pitabwire/formbridge/internal/validate"
	"github.com/pitabwire/formbridge/model"
)

const defaultGuardTTL = 24 * time.Hour

// Request is one submission attempt.
type Request struct {
	Form     model.FormModel
	Mode     string
	RecordID string

	// IdempotencyKey deduplicates retried submissions. Empty disables the
	// guard for this request.
	IdempotencyKey string
}

// Response is the outcome of a submission attempt. When Success is false,
// Errors carries the per-field rejections keyed by form field path and
// Unmapped carries backend messages that could not be attributed to a field.
type Response struct {
	Success    bool                        `json:"success"`
	StatusCode int                         `json:"status_code,omitempty"`
	Body       map[string]any              `json:"body,omitempty"`
	Errors     map[string]model.FieldError `json:"errors,omitempty"`
	Unmapped   []string                    `json:"unmapped_errors,omitempty"`
	Replayed   bool                        `json:"replayed,omitempty"`
}

// Processor runs submissions end to end.
type Processor struct {
	registry *entity.Registry
	client   *backend.Client
	guard    submitguard.Store
	guardTTL time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithGuard enables idempotency deduplication backed by the given store.
func WithGuard(store submitguard.Store, ttl time.Duration) Option {
	return func(p *Processor) {
		p.guard = store
		if ttl > 0 {
			p.guardTTL = ttl
		}
	}
}

// WithMetrics enables submission metric recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// NewProcessor creates a Processor.
func NewProcessor(registry *entity.Registry, client *backend.Client, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		registry: registry,
		client:   client,
		guardTTL: defaultGuardTTL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs one submission. A validation failure, local or remote,
// returns both a populated Response and a VALIDATION_ERROR envelope; the
// Response carries the field detail the frontend needs to annotate the form.
func (p *Processor) Execute(ctx context.Context, rctx *model.RequestContext, entityName string, req Request) (*Response, error) {
	start := time.Now()

	def, ok := p.registry.GetEntity(entityName)
	if !ok {
		return nil, model.NewNotFoundError("entity " + entityName + " not found")
	}

	mode := req.Mode
	if mode == "" {
		mode = model.ModeCreate
	}
	if mode == model.ModeEdit && req.RecordID == "" {
		return nil, model.NewBadRequestError("record id is required for edit submissions")
	}

	logger := observability.RequestLogger(ctx, p.logger).With(
		zap.String("entity", def.Entity),
		zap.String("mode", mode),
	)

	form := normalizeForm(def, req.Form)

	res := validate.Validate(def, form)
	if !res.Valid {
		logger.Info("submission rejected by local validation",
			zap.Int("field_errors", len(res.Errors)))
		p.recordMetrics(def.Entity, "validation_failed", start, len(res.Errors))
		return &Response{Errors: res.Errors},
			model.NewValidationError(res.FieldErrors())
	}

	wp, err := payload.New(def, mapper.New(def, p.logger)).Build(form, mode, req.RecordID)
	if err != nil {
		return nil, model.NewBadRequestError(err.Error())
	}

	var guardKey, inputHash string
	if p.guard != nil && req.IdempotencyKey != "" {
		guardKey = submitguard.Key(def.Entity, req.IdempotencyKey)
		inputHash = submitguard.HashPayload(wp)

		outcome, found, err := p.guard.Check(ctx, guardKey, inputHash)
		if err != nil {
			var env *model.ErrorEnvelope
			if errors.As(err, &env) && env.Code == model.ErrConflict {
				logger.Warn("idempotency key reused with different payload",
					zap.String("idempotency_key", req.IdempotencyKey))
				if p.metrics != nil {
					p.metrics.RecordSubmissionConflict(def.Entity)
				}
				return nil, err
			}
			// Guard store failures degrade to an unguarded submit.
			logger.Warn("idempotency check failed, proceeding without guard",
				zap.Error(err))
		} else if found {
			logger.Info("submission replayed from idempotency store",
				zap.String("idempotency_key", req.IdempotencyKey))
			if p.metrics != nil {
				p.metrics.RecordSubmissionReplay(def.Entity)
			}
			return &Response{
				Success:    true,
				StatusCode: outcome.StatusCode,
				Body:       outcome.Body,
				Replayed:   true,
			}, nil
		}
	}

	path := def.Backend.CreatePath
	if mode == model.ModeEdit {
		path = backend.PathWithID(def.Backend.UpdatePath, req.RecordID)
	}

	result, err := p.client.Submit(ctx, rctx, def.Backend.ServiceID, path, wp)
	if err != nil {
		var sve *backend.ServerValidationError
		if errors.As(err, &sve) {
			errs := make(map[string]model.FieldError)
			unmapped := validate.MergeServerErrors(def, errs, sve.FieldErrors)
			logger.Info("submission rejected by backend",
				zap.Int("field_errors", len(errs)),
				zap.Int("unmapped", len(unmapped)))
			p.recordMetrics(def.Entity, "rejected", start, 0)
			resp := &Response{Errors: errs, Unmapped: unmapped}
			return resp, model.NewValidationError(resultFieldErrors(errs))
		}
		p.recordMetrics(def.Entity, "error", start, 0)
		return nil, err
	}

	if guardKey != "" {
		// Best effort: a failed record only loses replay protection.
		recErr := p.guard.Record(ctx, guardKey, inputHash, submitguard.Outcome{
			StatusCode: result.StatusCode,
			Body:       result.Body,
		}, p.guardTTL)
		if recErr != nil {
			logger.Warn("failed to record submission outcome", zap.Error(recErr))
		}
	}

	logger.Info("submission accepted",
		zap.Int("status_code", result.StatusCode),
		zap.Duration("duration", time.Since(start)))
	p.recordMetrics(def.Entity, "success", start, 0)

	return &Response{
		Success:    true,
		StatusCode: result.StatusCode,
		Body:       result.Body,
	}, nil
}

func (p *Processor) recordMetrics(entityName, status string, start time.Time, fieldErrors int) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordSubmission(entityName, status, time.Since(start))
	for i := 0; i < fieldErrors; i++ {
		p.metrics.RecordValidationFailure(entityName)
	}
}

func resultFieldErrors(errs map[string]model.FieldError) []model.FieldError {
	out := make([]model.FieldError, 0, len(errs))
	for _, fe := range errs {
		out = append(out, fe)
	}
	return out
}
