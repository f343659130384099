package refdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/formbridge/internal/entity"
	"github.com/pitabwire/formbridge/model"
)

// Fetcher retrieves a list of raw records from a backend service. It is
// satisfied by the backend client.
type Fetcher interface {
	FetchItems(ctx context.Context, rctx *model.RequestContext, serviceID, path, itemsPath string) ([]map[string]any, error)
}

// Provider resolves lookup definitions to option lists with caching.
type Provider struct {
	registry   *entity.Registry
	fetcher    Fetcher
	store      Store
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewProvider creates a Provider. A nil logger is replaced with a no-op one.
func NewProvider(registry *entity.Registry, fetcher Fetcher, store Store, defaultTTL time.Duration, logger *zap.Logger) *Provider {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if store == nil {
		store = NewMemoryStore(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		registry:   registry,
		fetcher:    fetcher,
		store:      store,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Options resolves a lookup to its option list, optionally narrowed by a
// case-insensitive label query. The second return reports a cache hit.
func (p *Provider) Options(ctx context.Context, rctx *model.RequestContext, lookupID, query string) ([]model.OptionValue, bool, error) {
	def, ok := p.registry.GetLookup(lookupID)
	if !ok {
		return nil, false, model.NewNotFoundError(fmt.Sprintf("lookup %q not found", lookupID))
	}

	key := cacheKey(def.ID)
	if options, hit, err := p.store.Get(ctx, key); err == nil && hit {
		return filterOptions(options, query), true, nil
	} else if err != nil {
		// A broken cache degrades to a backend fetch.
		p.logger.Warn("lookup cache read failed", zap.String("lookup", lookupID), zap.Error(err))
	}

	options, err := p.fetch(ctx, rctx, def)
	if err != nil {
		return nil, false, err
	}

	if err := p.store.Put(ctx, key, options, p.ttlFor(def)); err != nil {
		p.logger.Warn("lookup cache write failed", zap.String("lookup", lookupID), zap.Error(err))
	}

	return filterOptions(options, query), false, nil
}

// ReferenceFor assembles the full reference data set an entity's option
// fields need: one resolved lookup per distinct lookup ID.
func (p *Provider) ReferenceFor(ctx context.Context, rctx *model.RequestContext, def model.EntityDefinition) (model.ReferenceData, error) {
	ref := make(model.ReferenceData)

	collect := func(fields []model.FieldSpec) error {
		for _, f := range fields {
			if f.Lookup == "" {
				continue
			}
			if _, done := ref[f.Lookup]; done {
				continue
			}
			options, _, err := p.Options(ctx, rctx, f.Lookup, "")
			if err != nil {
				return fmt.Errorf("resolving lookup %q: %w", f.Lookup, err)
			}
			ref[f.Lookup] = options
		}
		return nil
	}

	if err := collect(def.Fields); err != nil {
		return nil, err
	}
	for _, g := range def.Groups {
		if err := collect(g.Fields); err != nil {
			return nil, err
		}
	}
	for _, f := range def.View.Filters {
		if f.Lookup == "" {
			continue
		}
		if _, done := ref[f.Lookup]; done {
			continue
		}
		options, _, err := p.Options(ctx, rctx, f.Lookup, "")
		if err != nil {
			return nil, fmt.Errorf("resolving lookup %q: %w", f.Lookup, err)
		}
		ref[f.Lookup] = options
	}

	return ref, nil
}

// Invalidate drops the cached entry for a lookup.
func (p *Provider) Invalidate(ctx context.Context, lookupID string) error {
	return p.store.Delete(ctx, cacheKey(lookupID))
}

func (p *Provider) ttlFor(def model.LookupDefinition) time.Duration {
	if def.Cache != nil && def.Cache.TTL != "" {
		if parsed, err := time.ParseDuration(def.Cache.TTL); err == nil {
			return parsed
		}
	}
	return p.defaultTTL
}

func (p *Provider) fetch(ctx context.Context, rctx *model.RequestContext, def model.LookupDefinition) ([]model.OptionValue, error) {
	items, err := p.fetcher.FetchItems(ctx, rctx, def.ServiceID, def.Path, def.ItemsPath)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", def.ID, err)
	}

	options := make([]model.OptionValue, 0, len(items))
	for _, item := range items {
		label := stringField(item, def.LabelField)
		value := stringField(item, def.ValueField)
		if label == "" && value == "" {
			continue
		}
		options = append(options, model.OptionValue{Label: label, Value: value})
	}
	return options, nil
}

func cacheKey(lookupID string) string {
	return "lookup:" + lookupID
}

// filterOptions filters options by query (case-insensitive match on label).
func filterOptions(options []model.OptionValue, query string) []model.OptionValue {
	if query == "" {
		return options
	}

	q := strings.ToLower(query)
	var filtered []model.OptionValue
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Label), q) {
			filtered = append(filtered, opt)
		}
	}
	return filtered
}

func stringField(item map[string]any, field string) string {
	switch v := item[field].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
