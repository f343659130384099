package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockBackend is a configurable HTTP test server that simulates a backend
// service. Responses are configured per named route and every received
// request is recorded for later assertion.
type MockBackend struct {
	t         *testing.T
	serviceID string
	server    *httptest.Server

	mu            sync.RWMutex
	routes        map[string]*routeConfig
	receivedByKey map[string][]*RecordedRequest
}

// RecordedRequest captures the details of a request received by the mock backend.
type RecordedRequest struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     http.Header
	Body        map[string]any
	FormValues  map[string]string
	FileNames   map[string]string
	RawBody     []byte
	ReceivedAt  time.Time
}

// routeConfig holds the configured responses for a single route.
type routeConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

// RouteMock is a builder for configuring mock responses for a named route.
type RouteMock struct {
	backend *MockBackend
	name    string
}

// Route maps a name to its HTTP method and ServeMux path pattern.
type Route struct {
	Method  string
	Pattern string
}

// newMockBackend creates a new mock backend and starts the HTTP test server.
func newMockBackend(t *testing.T, serviceID string, routes map[string]Route) *MockBackend {
	t.Helper()

	mb := &MockBackend{
		t:             t,
		serviceID:     serviceID,
		routes:        make(map[string]*routeConfig),
		receivedByKey: make(map[string][]*RecordedRequest),
	}

	mux := http.NewServeMux()
	for name, route := range routes {
		mux.HandleFunc(route.Method+" "+route.Pattern, mb.handleRoute(name))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": fmt.Sprintf("mock: no route registered for %s %s", r.Method, r.URL.Path),
		})
	})

	mb.server = httptest.NewServer(mux)
	t.Cleanup(mb.server.Close)

	return mb
}

// URL returns the base URL of the mock backend server.
func (mb *MockBackend) URL() string {
	return mb.server.URL
}

// OnRoute returns a builder for configuring responses for the named route.
func (mb *MockBackend) OnRoute(name string) *RouteMock {
	return &RouteMock{backend: mb, name: name}
}

// RespondWith configures the route to respond with the given status and body.
func (rm *RouteMock) RespondWith(status int, body any) *RouteMock {
	rm.backend.addResponse(rm.name, &mockResponse{status: status, body: body})
	return rm
}

// RespondWithError configures the route to respond with an error envelope.
func (rm *RouteMock) RespondWithError(status int, code, message string) *RouteMock {
	rm.backend.addResponse(rm.name, &mockResponse{
		status: status,
		body: map[string]any{
			"code":    code,
			"message": message,
		},
	})
	return rm
}

// RespondWithDelay configures a delayed response to simulate slow backends.
func (rm *RouteMock) RespondWithDelay(delay time.Duration, status int, body any) *RouteMock {
	rm.backend.addResponse(rm.name, &mockResponse{status: status, body: body, delay: delay})
	return rm
}

// RespondWithConnectionError configures the route to close the connection
// to simulate a backend failure.
func (rm *RouteMock) RespondWithConnectionError() *RouteMock {
	rm.backend.addResponse(rm.name, &mockResponse{connError: true})
	return rm
}

func (mb *MockBackend) addResponse(name string, resp *mockResponse) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cfg, ok := mb.routes[name]
	if !ok {
		cfg = &routeConfig{}
		mb.routes[name] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (mb *MockBackend) handleRoute(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			QueryParams: make(map[string]string),
			Headers:     r.Header.Clone(),
			ReceivedAt:  time.Now(),
		}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				rec.QueryParams[key] = values[0]
			}
		}

		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(32 << 20); err == nil {
				rec.FormValues = make(map[string]string)
				for key, values := range r.MultipartForm.Value {
					if len(values) > 0 {
						rec.FormValues[key] = values[0]
					}
				}
				rec.FileNames = make(map[string]string)
				for key, headers := range r.MultipartForm.File {
					if len(headers) > 0 {
						rec.FileNames[key] = headers[0].Filename
					}
				}
			}
		} else if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			rec.RawBody = body
			if len(body) > 0 {
				var parsed map[string]any
				if err := json.Unmarshal(body, &parsed); err == nil {
					rec.Body = parsed
				}
			}
		}

		mb.mu.Lock()
		mb.receivedByKey[name] = append(mb.receivedByKey[name], rec)
		mb.mu.Unlock()

		resp := mb.getNextResponse(name)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}

		if resp.connError {
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, _ := hj.Hijack()
				if conn != nil {
					conn.Close()
				}
			}
			return
		}

		if resp.delay > 0 {
			time.Sleep(resp.delay)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		if resp.body != nil {
			json.NewEncoder(w).Encode(resp.body)
		}
	}
}

func (mb *MockBackend) getNextResponse(name string) *mockResponse {
	mb.mu.RLock()
	cfg, ok := mb.routes[name]
	mb.mu.RUnlock()
	if !ok || cfg == nil {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if len(cfg.responses) == 0 {
		return nil
	}

	idx := cfg.current
	if idx >= len(cfg.responses) {
		// Repeat the last response for subsequent calls.
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// AssertCalled verifies that the route was called the expected number of times.
func (mb *MockBackend) AssertCalled(t *testing.T, name string, expectedCount int) {
	t.Helper()
	mb.mu.RLock()
	actual := len(mb.receivedByKey[name])
	mb.mu.RUnlock()
	if actual != expectedCount {
		t.Errorf("mock %s: route %q called %d times, want %d", mb.serviceID, name, actual, expectedCount)
	}
}

// AssertNotCalled verifies that the route was never called.
func (mb *MockBackend) AssertNotCalled(t *testing.T, name string) {
	t.Helper()
	mb.AssertCalled(t, name, 0)
}

// LastRequest returns the last request received for the given route.
// Returns nil if no requests were recorded.
func (mb *MockBackend) LastRequest(name string) *RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByKey[name]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// AllRequests returns all requests received for the given route.
func (mb *MockBackend) AllRequests(name string) []*RecordedRequest {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	reqs := mb.receivedByKey[name]
	copied := make([]*RecordedRequest, len(reqs))
	copy(copied, reqs)
	return copied
}

// Reset clears all recorded requests and configured responses for the backend.
func (mb *MockBackend) Reset() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.routes = make(map[string]*routeConfig)
	mb.receivedByKey = make(map[string][]*RecordedRequest)
}

// AdminRoutes returns the routes served by the admin-svc test backend,
// matching the company entity fixture.
func AdminRoutes() map[string]Route {
	return map[string]Route{
		"listCompanies": {Method: "GET", Pattern: "/api/companies"},
		"getCompany":    {Method: "GET", Pattern: "/api/companies/{id}"},
		"createCompany": {Method: "POST", Pattern: "/api/companies"},
		"updateCompany": {Method: "POST", Pattern: "/api/companies/{id}"},
		"listCountries": {Method: "GET", Pattern: "/api/countries"},
	}
}

// RecruitRoutes returns the routes served by the recruit-svc test backend,
// matching the job application entity fixture.
func RecruitRoutes() map[string]Route {
	return map[string]Route{
		"listApplications":  {Method: "GET", Pattern: "/api/applications"},
		"getApplication":    {Method: "GET", Pattern: "/api/applications/{id}"},
		"createApplication": {Method: "POST", Pattern: "/api/applications"},
		"updateApplication": {Method: "POST", Pattern: "/api/applications/{id}"},
		"listPositions":       {Method: "GET", Pattern: "/api/positions"},
		"listReferralSources": {Method: "GET", Pattern: "/api/referral-sources"},
	}
}
