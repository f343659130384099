package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurity_MissingTokenRejected(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/ui/entities", "")

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusUnauthorized, &body)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestSecurity_ExpiredTokenRejected(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateExpiredToken(ClerkClaims())

	resp := h.GET("/ui/entities", token)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestSecurity_GarbageTokenRejected(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/ui/entities", "not.a.jwt")
	h.AssertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestSecurity_DisallowedAlgorithmRejected(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateEdDSAToken(ClerkClaims())

	resp := h.GET("/ui/entities", token)

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusUnauthorized, &body)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestSecurity_HealthBypassesAuth(t *testing.T) {
	h := NewTestHarness(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := h.GET(path, "")
		h.AssertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
}

func TestSecurity_ResponseHeaders(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ClerkClaims())

	resp := h.GET("/ui/entities", token)
	defer resp.Body.Close()
	h.AssertStatus(t, resp, http.StatusOK)

	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-Id"))
}

func TestSecurity_SubjectClaimsReachBackend(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ClerkClaims())
	seedCompanies(h)

	resp := h.GET("/ui/entities/company/view", token)
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	req := h.MockBackend("admin-svc").LastRequest("listCompanies")
	require.NotNil(t, req)
	assert.Equal(t, "user-clerk", req.Headers.Get("X-Request-Subject"))
	assert.Equal(t, "acme-corp", req.Headers.Get("X-Tenant-Id"))
	assert.NotEmpty(t, req.Headers.Get("X-Correlation-Id"))
}
