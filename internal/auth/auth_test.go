package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGatewayProviderParsesHeaders(t *testing.T) {
	p := NewGatewayProvider()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.False(t, p.HasValidAuth(r))

	r.Header.Set("x-user-id", "user-1")
	r.Header.Set("x-user-roles", "admin, viewer")
	require.True(t, p.HasValidAuth(r))

	id, err := p.ParseRequest(r)
	require.NoError(t, err)
	require.Equal(t, "user-1", id.ExternalID)
	require.Equal(t, []string{"admin", "viewer"}, id.Roles)
}

func TestGatewayProviderRejectsMissingUserID(t *testing.T) {
	p := NewGatewayProvider()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := p.ParseRequest(r)
	require.Error(t, err)
}

func TestNoneProviderReturnsAnonymousIdentity(t *testing.T) {
	p := NewNoneProvider("")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.True(t, p.HasValidAuth(r))

	id, err := p.ParseRequest(r)
	require.NoError(t, err)
	require.Equal(t, "anonymous", id.ExternalID)
	require.True(t, id.HasRole("anonymous"))
}

func TestJWTProviderValidatesSignatureAndClaims(t *testing.T) {
	secret := "test-secret"
	p, err := NewJWTProvider(JWTConfig{Secret: secret, Algorithm: "HS256"})
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "user-42",
		"exp":  time.Now().Add(time.Hour).Unix(),
		"realm_access": map[string]any{
			"roles": []string{"admin"},
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.False(t, p.HasValidAuth(r))

	r.Header.Set("Authorization", "Bearer "+signed)
	require.True(t, p.HasValidAuth(r))

	id, err := p.ParseRequest(r)
	require.NoError(t, err)
	require.Equal(t, "user-42", id.ExternalID)
	require.Equal(t, []string{"admin"}, id.Roles)
}

func TestJWTProviderRejectsExpiredToken(t *testing.T) {
	secret := "test-secret"
	p, err := NewJWTProvider(JWTConfig{Secret: secret, Algorithm: "HS256"})
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	_, err = p.ParseRequest(r)
	require.Error(t, err)
}

func TestJWTProviderUsesConfiguredClaimPathWithFallback(t *testing.T) {
	secret := "test-secret"
	p, err := NewJWTProvider(JWTConfig{Secret: secret, Algorithm: "HS256", RolesClaim: "missing.path"})
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
		"realm_access": map[string]any{
			"roles": []string{"viewer"},
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	id, err := p.ParseRequest(r)
	require.NoError(t, err)
	require.Equal(t, []string{"viewer"}, id.Roles)
}
