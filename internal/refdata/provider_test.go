package refdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/formbridge/internal/entity"
	"github.com/pitabwire/formbridge/model"
)

type stubFetcher struct {
	items []map[string]any
	err   error
	calls int
}

func (f *stubFetcher) FetchItems(_ context.Context, _ *model.RequestContext, _, _, _ string) ([]map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func countryItems() []map[string]any {
	return []map[string]any{
		{"id": float64(1), "name": "India"},
		{"id": float64(2), "name": "Indonesia"},
		{"id": float64(3), "name": "Iceland"},
	}
}

func testRegistry() *entity.Registry {
	return entity.NewRegistry([]model.EntityDefinition{
		{
			Entity: "company",
			Fields: []model.FieldSpec{
				{Key: "country", Kind: model.KindOption, Lookup: "countries"},
			},
			Lookups: []model.LookupDefinition{
				{
					ID: "countries", ServiceID: "admin-svc", Path: "/api/countries",
					ItemsPath: "data", LabelField: "name", ValueField: "id",
					Cache: &model.CacheSpec{TTL: "10m"},
				},
			},
		},
	})
}

func TestProvider_Options_fetchAndCache(t *testing.T) {
	fetcher := &stubFetcher{items: countryItems()}
	p := NewProvider(testRegistry(), fetcher, NewMemoryStore(0), time.Minute, nil)
	ctx := context.Background()
	rctx := &model.RequestContext{SubjectID: "u1"}

	options, cached, err := p.Options(ctx, rctx, "countries", "")
	if err != nil {
		t.Fatalf("Options error: %v", err)
	}
	if cached {
		t.Error("first resolution should not be a cache hit")
	}
	if len(options) != 3 {
		t.Fatalf("got %d options, want 3", len(options))
	}
	if options[0].Label != "India" || options[0].Value != "1" {
		t.Errorf("options[0] = %+v", options[0])
	}

	_, cached, err = p.Options(ctx, rctx, "countries", "")
	if err != nil {
		t.Fatalf("Options error: %v", err)
	}
	if !cached {
		t.Error("second resolution should be a cache hit")
	}
	if fetcher.calls != 1 {
		t.Errorf("backend fetched %d times, want 1", fetcher.calls)
	}
}

func TestProvider_Options_queryFiltersByLabel(t *testing.T) {
	fetcher := &stubFetcher{items: countryItems()}
	p := NewProvider(testRegistry(), fetcher, NewMemoryStore(0), time.Minute, nil)

	options, _, err := p.Options(context.Background(), &model.RequestContext{}, "countries", "indo")
	if err != nil {
		t.Fatalf("Options error: %v", err)
	}
	if len(options) != 1 || options[0].Label != "Indonesia" {
		t.Fatalf("query filter got %v", options)
	}
}

func TestProvider_Options_unknownLookup(t *testing.T) {
	p := NewProvider(testRegistry(), &stubFetcher{}, NewMemoryStore(0), time.Minute, nil)

	_, _, err := p.Options(context.Background(), &model.RequestContext{}, "planets", "")
	if err == nil {
		t.Fatal("unknown lookup should return error")
	}
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrNotFound {
		t.Errorf("error = %v, want NOT_FOUND envelope", err)
	}
}

func TestProvider_Options_backendFailure(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("connection refused")}
	p := NewProvider(testRegistry(), fetcher, NewMemoryStore(0), time.Minute, nil)

	_, _, err := p.Options(context.Background(), &model.RequestContext{}, "countries", "")
	if err == nil {
		t.Fatal("backend failure should propagate")
	}
}

func TestProvider_Invalidate(t *testing.T) {
	fetcher := &stubFetcher{items: countryItems()}
	p := NewProvider(testRegistry(), fetcher, NewMemoryStore(0), time.Minute, nil)
	ctx := context.Background()
	rctx := &model.RequestContext{}

	p.Options(ctx, rctx, "countries", "")
	if err := p.Invalidate(ctx, "countries"); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}

	_, cached, _ := p.Options(ctx, rctx, "countries", "")
	if cached {
		t.Error("resolution after invalidation should miss the cache")
	}
	if fetcher.calls != 2 {
		t.Errorf("backend fetched %d times, want 2", fetcher.calls)
	}
}

func TestProvider_ReferenceFor(t *testing.T) {
	fetcher := &stubFetcher{items: countryItems()}
	p := NewProvider(testRegistry(), fetcher, NewMemoryStore(0), time.Minute, nil)

	def, _ := testRegistry().GetEntity("company")
	ref, err := p.ReferenceFor(context.Background(), &model.RequestContext{}, def)
	if err != nil {
		t.Fatalf("ReferenceFor error: %v", err)
	}
	if len(ref["countries"]) != 3 {
		t.Fatalf("ref[countries] = %v", ref["countries"])
	}
	if fetcher.calls != 1 {
		t.Errorf("backend fetched %d times, want 1", fetcher.calls)
	}
}

func TestMemoryStore_expiry(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	s.Put(ctx, "lookup:countries", []model.OptionValue{{Label: "India", Value: "1"}}, -time.Second)

	_, hit, err := s.Get(ctx, "lookup:countries")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("expired entry should not hit")
	}
}

func TestMemoryStore_evictsExpiredAtCapacity(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()

	s.Put(ctx, "lookup:a", nil, -time.Second)
	s.Put(ctx, "lookup:b", nil, time.Minute)
	s.Put(ctx, "lookup:c", nil, time.Minute)

	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2 after evicting the expired entry", s.Len())
	}
}

func TestRedisStore_roundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client)
	ctx := context.Background()

	options := []model.OptionValue{
		{Label: "India", Value: "1"},
		{Label: "Iceland", Value: "3"},
	}
	if err := s.Put(ctx, "lookup:countries", options, time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, hit, err := s.Get(ctx, "lookup:countries")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !hit {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[1].Label != "Iceland" {
		t.Errorf("got %v", got)
	}
}

func TestRedisStore_ttlExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client)
	ctx := context.Background()

	s.Put(ctx, "lookup:countries", []model.OptionValue{{Label: "India", Value: "1"}}, time.Minute)
	mr.FastForward(2 * time.Minute)

	_, hit, err := s.Get(ctx, "lookup:countries")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("entry should have expired")
	}
}

func TestRedisStore_delete(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client)
	ctx := context.Background()

	s.Put(ctx, "lookup:countries", []model.OptionValue{{Label: "India", Value: "1"}}, time.Minute)
	if err := s.Delete(ctx, "lookup:countries"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	_, hit, _ := s.Get(ctx, "lookup:countries")
	if hit {
		t.Error("deleted entry should not hit")
	}
}

func TestProvider_Options_providerWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	fetcher := &stubFetcher{items: countryItems()}
	p := NewProvider(testRegistry(), fetcher, NewRedisStore(client), time.Minute, nil)
	ctx := context.Background()
	rctx := &model.RequestContext{}

	p.Options(ctx, rctx, "countries", "")
	_, cached, err := p.Options(ctx, rctx, "countries", "")
	if err != nil {
		t.Fatalf("Options error: %v", err)
	}
	if !cached {
		t.Error("second resolution through redis store should hit")
	}
	if fetcher.calls != 1 {
		t.Errorf("backend fetched %d times, want 1", fetcher.calls)
	}
}
