package integration

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"maps"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID   = "test-key-1"
	testEdKeyID = "test-key-ed1"
)

// TestClaims holds the configurable claims for generating test JWT tokens.
type TestClaims struct {
	SubjectID string
	TenantID  string
	Email     string
	Roles     []string
	Extra     map[string]any
}

// tokenIssuer signs JWTs with an RSA key and an Ed25519 key, both published
// through a test JWKS server. The Ed25519 key exists so suites can probe the
// algorithm allow-list; the routers under test accept RS256 only.
type tokenIssuer struct {
	rsaKey     *rsa.PrivateKey
	edKey      ed25519.PrivateKey
	jwksServer *httptest.Server
	issuer     string
	audience   string
}

// newTokenIssuer creates a token issuer with fresh key pairs and a test
// JWKS server.
func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	edPub, edKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate Ed25519 key: %v", err)
	}

	jwks := []map[string]any{
		{
			"kid": testKeyID,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(rsaKey.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(rsaKey.PublicKey.E)).Bytes()),
		},
		{
			"kid": testEdKeyID,
			"kty": "OKP",
			"crv": "Ed25519",
			"alg": "EdDSA",
			"use": "sig",
			"x":   base64.RawURLEncoding.EncodeToString(edPub),
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": jwks})
	}))
	t.Cleanup(srv.Close)

	return &tokenIssuer{
		rsaKey:     rsaKey,
		edKey:      edKey,
		jwksServer: srv,
		issuer:     "https://auth.test.formbridge.dev",
		audience:   "formbridge-bff-test",
	}
}

// GenerateToken creates a valid RS256-signed JWT with the given claims.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodRS256, testKeyID, ti.rsaKey, claims, now, now.Add(1*time.Hour))
}

// GenerateExpiredToken creates a JWT token that expired in the past.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodRS256, testKeyID, ti.rsaKey, claims, now.Add(-2*time.Hour), now.Add(-1*time.Hour))
}

// GenerateEdDSAToken creates an otherwise valid JWT signed with the issuer's
// Ed25519 key. Routers configured for RS256 only must reject it.
func (ti *tokenIssuer) GenerateEdDSAToken(claims TestClaims) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodEdDSA, testEdKeyID, ti.edKey, claims, now, now.Add(1*time.Hour))
}

func (ti *tokenIssuer) sign(method jwt.SigningMethod, kid string, key any, claims TestClaims, iat, exp time.Time) string {
	mapClaims := jwt.MapClaims{
		"iss":       ti.issuer,
		"aud":       ti.audience,
		"iat":       jwt.NewNumericDate(iat),
		"exp":       jwt.NewNumericDate(exp),
		"sub":       claims.SubjectID,
		"tenant_id": claims.TenantID,
		"email":     claims.Email,
	}

	if len(claims.Roles) > 0 {
		// Store as []any to match JWT decode behavior.
		roles := make([]any, len(claims.Roles))
		for i, r := range claims.Roles {
			roles[i] = r
		}
		mapClaims["roles"] = roles
	}

	maps.Copy(mapClaims, claims.Extra)

	token := jwt.NewWithClaims(method, mapClaims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		panic("sign JWT: " + err.Error())
	}
	return signed
}

// JWKSURL returns the URL of the JWKS endpoint served by this issuer.
func (ti *tokenIssuer) JWKSURL() string {
	return ti.jwksServer.URL
}

// Issuer returns the expected token issuer claim.
func (ti *tokenIssuer) Issuer() string {
	return ti.issuer
}

// Audience returns the expected token audience claim.
func (ti *tokenIssuer) Audience() string {
	return ti.audience
}
