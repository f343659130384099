package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pitabwire/formbridge/internal/config"
	"github.com/pitabwire/formbridge/model"
)

func newTestClient(serverURL string) *Client {
	return New(map[string]config.ServiceConfig{
		"admin-svc": {
			BaseURL: serverURL,
			Timeout: 2 * time.Second,
			Headers: map[string]string{"X-Api-Key": "test-key"},
		},
	}, nil)
}

func testRctx() *model.RequestContext {
	return &model.RequestContext{SubjectID: "u1", CorrelationID: "corr-1"}
}

func TestFetchItems_itemsPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/companies" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Error("missing configured service header")
		}
		if r.Header.Get("X-Correlation-Id") != "corr-1" {
			t.Error("missing correlation header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"items": []any{
					map[string]any{"id": 1, "name": "Acme"},
					map[string]any{"id": 2, "name": "Globex"},
				},
			},
		})
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).FetchItems(context.Background(), testRctx(), "admin-svc", "/api/companies", "data.items")
	if err != nil {
		t.Fatalf("FetchItems error: %v", err)
	}
	if len(items) != 2 || items[0]["name"] != "Acme" {
		t.Fatalf("items = %v", items)
	}
}

func TestFetchItems_defaultEnvelopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []any{map[string]any{"id": 1}},
		})
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).FetchItems(context.Background(), testRctx(), "admin-svc", "/api/countries", "")
	if err != nil {
		t.Fatalf("FetchItems error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %v", items)
	}
}

func TestFetchRecord_unwrapsDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": 7, "name": "Acme"},
		})
	}))
	defer srv.Close()

	rec, err := newTestClient(srv.URL).FetchRecord(context.Background(), testRctx(), "admin-svc", "/api/companies/7")
	if err != nil {
		t.Fatalf("FetchRecord error: %v", err)
	}
	if rec["name"] != "Acme" {
		t.Errorf("record = %v", rec)
	}
}

func TestFetchRecord_notFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchRecord(context.Background(), testRctx(), "admin-svc", "/api/companies/404")
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrNotFound {
		t.Fatalf("error = %v, want NOT_FOUND envelope", err)
	}
}

func TestSubmit_json(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "Acme" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": 42})
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Submit(context.Background(), testRctx(), "admin-svc", "/api/companies", model.WirePayload{
		Encoding: model.EncodingJSON,
		Body:     map[string]any{"name": "Acme"},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if result.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", result.StatusCode)
	}
	if result.Body["id"] != float64(42) {
		t.Errorf("body = %v", result.Body)
	}
}

func TestSubmit_multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart: %v", err)
		}
		if got := r.FormValue("name"); got != "Acme" {
			t.Errorf("name = %q", got)
		}
		if got := r.FormValue("offices[0][city]"); got != "Pune" {
			t.Errorf("offices[0][city] = %q", got)
		}

		file, header, err := r.FormFile("logo")
		if err != nil {
			t.Fatalf("logo part: %v", err)
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		if string(content) != "png-bytes" {
			t.Errorf("logo content = %q", content)
		}
		if header.Filename != "logo.png" {
			t.Errorf("logo filename = %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("logo content type = %q", ct)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Submit(context.Background(), testRctx(), "admin-svc", "/api/companies", model.WirePayload{
		Encoding: model.EncodingMultipart,
		Fields: []model.WireField{
			{Key: "name", Value: "Acme"},
			{Key: "offices[0][city]", Value: "Pune"},
		},
		Files: []model.FilePart{
			{Key: "logo", Filename: "logo.png", ContentType: "image/png", Content: []byte("png-bytes")},
		},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
}

func TestSubmit_validationRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"message": "The given data was invalid",
			"errors": map[string]any{
				"gst_no": []any{"The gst no has already been taken."},
				"name":   "The name field is required.",
			},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Submit(context.Background(), testRctx(), "admin-svc", "/api/companies", model.WirePayload{
		Encoding: model.EncodingJSON,
		Body:     map[string]any{},
	})

	var sve *ServerValidationError
	if !errors.As(err, &sve) {
		t.Fatalf("error = %v, want ServerValidationError", err)
	}
	if len(sve.FieldErrors["gst_no"]) != 1 {
		t.Errorf("gst_no errors = %v", sve.FieldErrors["gst_no"])
	}
	if sve.FieldErrors["name"][0] != "The name field is required." {
		t.Errorf("name errors = %v", sve.FieldErrors["name"])
	}
}

func TestSubmit_serverErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Submit(context.Background(), testRctx(), "admin-svc", "/api/companies", model.WirePayload{
		Encoding: model.EncodingJSON,
		Body:     map[string]any{},
	})

	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrBackendUnavailable {
		t.Fatalf("error = %v, want BACKEND_UNAVAILABLE", err)
	}
	if calls != 1 {
		t.Errorf("backend called %d times, want exactly 1", calls)
	}
}

func TestSubmit_canceledContextDiscardsResponse(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := newTestClient(srv.URL).Submit(ctx, testRctx(), "admin-svc", "/api/companies", model.WirePayload{
		Encoding: model.EncodingJSON,
		Body:     map[string]any{},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestSubmit_unknownService(t *testing.T) {
	_, err := newTestClient("http://localhost:1").Submit(context.Background(), testRctx(), "ghost-svc", "/x", model.WirePayload{})
	if err == nil {
		t.Fatal("unknown service should return error")
	}
}

func TestPathWithID(t *testing.T) {
	got := PathWithID("/api/companies/{id}", "42")
	if got != "/api/companies/42" {
		t.Errorf("PathWithID = %q", got)
	}

	got = PathWithID("/api/companies/{id}", "a b")
	if got != "/api/companies/a%20b" {
		t.Errorf("PathWithID escaped = %q", got)
	}
}

func TestSpecIndex_Load(t *testing.T) {
	idx := NewSpecIndex()
	err := idx.Load([]SpecSource{{ServiceID: "admin-svc", SpecPath: "testdata/admin-svc.yaml"}})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if !idx.HasPath("admin-svc", "GET", "/api/companies") {
		t.Error("GET /api/companies should be indexed")
	}
	if !idx.HasPath("admin-svc", "POST", "/api/companies") {
		t.Error("POST /api/companies should be indexed")
	}
	if !idx.HasPath("admin-svc", "GET", "/api/companies/{id}") {
		t.Error("GET /api/companies/{id} should be indexed")
	}
	if idx.HasPath("admin-svc", "DELETE", "/api/companies") {
		t.Error("DELETE /api/companies should not be indexed")
	}
	if idx.HasPath("admin-svc", "GET", "/api/ghosts") {
		t.Error("unknown path should not be indexed")
	}
}

func TestSpecIndex_serviceWithoutSpecPasses(t *testing.T) {
	idx := NewSpecIndex()
	if !idx.HasPath("unspecced-svc", "GET", "/anything") {
		t.Error("service without a loaded spec should pass path checks")
	}
}

func TestSpecIndex_missingFile(t *testing.T) {
	idx := NewSpecIndex()
	err := idx.Load([]SpecSource{{ServiceID: "x", SpecPath: "testdata/missing.yaml"}})
	if err == nil {
		t.Fatal("missing spec file should return error")
	}
}
