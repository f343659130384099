// Package integration provides a reusable test harness for end-to-end
// integration testing of the formbridge BFF server. It starts a full HTTP
// server with mock backend services, in-memory stores, and a test JWT issuer.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

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

// TestHarness encapsulates a fully wired BFF instance with mock backends
// for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Registry   *entity.Registry
	GuardStore *submitguard.MemoryStore
	DraftStore *draft.MemoryStore

	backends map[string]*MockBackend
	cfg      *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	definitionDirs []string
	backends       map[string]map[string]Route
	handlerTimeout time.Duration
	guardTTL       time.Duration
}

// WithDefinitions sets the definition directories to load. Relative paths
// are resolved from the testdata directory.
func WithDefinitions(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.definitionDirs = dirs
	}
}

// WithBackend adds a mock backend service with the given routes.
func WithBackend(serviceID string, routes map[string]Route) HarnessOption {
	return func(c *harnessConfig) {
		if c.backends == nil {
			c.backends = make(map[string]map[string]Route)
		}
		c.backends[serviceID] = routes
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithGuardTTL sets the idempotency record TTL.
func WithGuardTTL(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.guardTTL = d
	}
}

// NewTestHarness creates and starts a full BFF test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		guardTTL:       1 * time.Hour,
	}
	for _, opt := range opts {
		opt(hc)
	}

	if len(hc.definitionDirs) == 0 {
		hc.definitionDirs = []string{filepath.Join(testdataDir(), "definitions")}
	}
	if hc.backends == nil {
		hc.backends = map[string]map[string]Route{
			"admin-svc":   AdminRoutes(),
			"recruit-svc": RecruitRoutes(),
		}
	}

	h := &TestHarness{
		t:        t,
		backends: make(map[string]*MockBackend),
	}

	// Mock backends first so service configs can point at their URLs.
	serviceConfigs := make(map[string]config.ServiceConfig, len(hc.backends))
	for svcID, routes := range hc.backends {
		mb := newMockBackend(t, svcID, routes)
		h.backends[svcID] = mb
		serviceConfigs[svcID] = config.ServiceConfig{
			BaseURL: mb.URL(),
			Timeout: 5 * time.Second,
		}
	}

	// Load and validate entity definitions.
	loader := entity.NewLoader()
	defs, err := loader.LoadAll(hc.definitionDirs)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if verrs := entity.NewValidator().Validate(defs, nil); len(verrs) > 0 {
		for _, ve := range verrs {
			t.Errorf("definition validation: %s", ve.Error())
		}
		t.Fatalf("definition validation failed with %d errors", len(verrs))
	}
	h.Registry = entity.NewRegistry(defs)

	// In-memory stores.
	h.GuardStore = submitguard.NewMemoryStore()
	h.DraftStore = draft.NewMemoryStore()

	// Providers.
	client := backend.New(serviceConfigs, nil)
	lookups := refdata.NewProvider(h.Registry, client, refdata.NewMemoryStore(0), 5*time.Minute, nil)
	formProvider := forms.NewProvider(h.Registry, client, lookups, nil)
	processor := submission.NewProcessor(h.Registry, client, nil,
		submission.WithGuard(h.GuardStore, hc.guardTTL))

	// JWT issuer and config.
	h.issuer = newTokenIssuer(t)
	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Identity = config.IdentityConfig{
		Issuer:     h.issuer.Issuer(),
		Audience:   h.issuer.Audience(),
		JWKSURL:    h.issuer.JWKSURL(),
		Algorithms: []string{"RS256"},
	}
	h.cfg.Services = serviceConfigs
	h.cfg.Observability.Metrics.Enabled = false

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour, nil)

	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Authenticate: transport.JWTAuthenticator(h.cfg.Identity, jwks),
		Forms:        formProvider,
		Submissions:  processor,
		Lookups:      lookups,
		Drafts:       h.DraftStore,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return len(h.Registry.AllEntities()) > 0 },
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// MockBackend returns the mock backend for the given service ID.
func (h *TestHarness) MockBackend(serviceID string) *MockBackend {
	mb, ok := h.backends[serviceID]
	if !ok {
		h.t.Fatalf("mock backend %q not configured", serviceID)
	}
	return mb
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// GenerateEdDSAToken creates an otherwise valid JWT signed with an algorithm
// outside the harness's RS256 allow-list.
func (h *TestHarness) GenerateEdDSAToken(claims TestClaims) string {
	return h.issuer.GenerateEdDSAToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, headers)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PUT", path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, token, nil)
}

// POSTMultipart performs an authenticated multipart POST. The form is sent
// as the "form" part; files are keyed by their part name.
func (h *TestHarness) POSTMultipart(path string, form any, files map[string][]byte, token string) *http.Response {
	h.t.Helper()

	formJSON, err := json.Marshal(form)
	if err != nil {
		h.t.Fatalf("marshal form: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("form", string(formJSON)); err != nil {
		h.t.Fatalf("write form part: %v", err)
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(name, name+".bin")
		if err != nil {
			h.t.Fatalf("create file part %s: %v", name, err)
		}
		fw.Write(content)
	}
	mw.Close()

	req, err := http.NewRequestWithContext(context.Background(), "POST", h.server.URL+path, &buf)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Default test claims ---

// AdminClaims returns TestClaims for a back-office administrator.
func AdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-admin",
		TenantID:  "acme-corp",
		Email:     "admin@acme.example.com",
		Roles:     []string{"admin"},
	}
}

// ClerkClaims returns TestClaims for a data-entry clerk.
func ClerkClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-clerk",
		TenantID:  "acme-corp",
		Email:     "clerk@acme.example.com",
		Roles:     []string{"clerk"},
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// CompanyFixture returns a wire record for mock list and get responses.
func CompanyFixture(id, name string, countryID int) map[string]any {
	return map[string]any{
		"id":                  id,
		"name":                name,
		"registration_number": "REG-" + id,
		"country_id":          countryID,
		"active":              "1",
		"incorporated_on":     "2019-03-01",
		"created_at":          "2024-01-15T10:30:00Z",
	}
}

// CompanyListFixture returns a list response wrapping the given records.
func CompanyListFixture(records ...map[string]any) map[string]any {
	return map[string]any{"data": records}
}

// CountryListFixture returns the countries lookup response.
func CountryListFixture() map[string]any {
	return map[string]any{
		"data": []any{
			map[string]any{"id": 1, "name": "India"},
			map[string]any{"id": 2, "name": "Kenya"},
			map[string]any{"id": 3, "name": "Uganda"},
		},
	}
}

// ErrorFixture returns an error response body.
func ErrorFixture(message string) map[string]any {
	return map[string]any{"message": message}
}

// ValidationErrorFixture returns a backend rejection with field errors.
func ValidationErrorFixture(message string, fieldErrors map[string]any) map[string]any {
	return map[string]any{
		"message": message,
		"errors":  fieldErrors,
	}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
