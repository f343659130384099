package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResilience_BackendServerErrorMapsToBadGateway(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ClerkClaims())

	h.MockBackend("admin-svc").OnRoute("createCompany").
		RespondWithError(500, "INTERNAL", "database down")

	resp := h.POST("/ui/entities/company/records", map[string]any{
		"values": map[string]any{
			"name":    "Acme Ltd",
			"country": map[string]any{"label": "Kenya", "value": "2"},
		},
	}, token)

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusBadGateway, &body)
	assert.Equal(t, "BACKEND_UNAVAILABLE", body["code"])
}

func TestResilience_BackendConnectionErrorMapsToBadGateway(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ClerkClaims())

	h.MockBackend("admin-svc").OnRoute("listCountries").
		RespondWith(200, CountryListFixture())
	h.MockBackend("admin-svc").OnRoute("listCompanies").
		RespondWithConnectionError()

	resp := h.GET("/ui/entities/company/view", token)

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusBadGateway, &body)
	assert.Equal(t, "BACKEND_UNAVAILABLE", body["code"])
}

func TestResilience_SlowBackendMapsToTimeout(t *testing.T) {
	h := NewTestHarness(t, WithHandlerTimeout(500*time.Millisecond))
	token := h.GenerateToken(ClerkClaims())

	h.MockBackend("admin-svc").OnRoute("listCountries").
		RespondWith(200, CountryListFixture())
	h.MockBackend("admin-svc").OnRoute("listCompanies").
		RespondWithDelay(2*time.Second, 200, CompanyListFixture())

	resp := h.GET("/ui/entities/company/view", token)

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusGatewayTimeout, &body)
	assert.Equal(t, "BACKEND_TIMEOUT", body["code"])
}

func TestResilience_BackendConflictSurfaces(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ClerkClaims())

	h.MockBackend("admin-svc").OnRoute("createCompany").
		RespondWithError(409, "CONFLICT", "registration number already exists")

	resp := h.POST("/ui/entities/company/records", map[string]any{
		"values": map[string]any{
			"name":    "Acme Ltd",
			"country": map[string]any{"label": "Kenya", "value": "2"},
		},
	}, token)

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusConflict, &body)
	assert.Equal(t, "CONFLICT", body["code"])
}
