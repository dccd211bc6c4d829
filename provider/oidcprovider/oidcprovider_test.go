package oidcprovider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/provider/oidcprovider"
)

// newTestIssuer serves the minimal OIDC discovery document go-oidc needs.
func newTestIssuer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/authorize",
			"token_endpoint":         server.URL + "/token",
			"jwks_uri":               server.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []any{}})
	})
	return server
}

func TestNewRequiresIssuerAndClient(t *testing.T) {
	_, err := oidcprovider.New(context.Background(), oidcprovider.Config{ClientID: "app"})
	require.Error(t, err)

	_, err = oidcprovider.New(context.Background(), oidcprovider.Config{IssuerURL: "http://localhost"})
	require.Error(t, err)
}

func TestNewDiscoversIssuer(t *testing.T) {
	issuer := newTestIssuer(t)

	p, err := oidcprovider.New(context.Background(), oidcprovider.Config{
		IssuerURL: issuer.URL,
		ClientID:  "attendance-app",
	})
	require.NoError(t, err)

	session, err := p.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, session, "no session before sign-in")
}

func TestSignInWithTokenRequiresIDToken(t *testing.T) {
	issuer := newTestIssuer(t)

	p, err := oidcprovider.New(context.Background(), oidcprovider.Config{
		IssuerURL: issuer.URL,
		ClientID:  "attendance-app",
	})
	require.NoError(t, err)

	err = p.SignInWithToken(context.Background(), &oauth2.Token{
		AccessToken: "opaque",
		Expiry:      time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, interrors.ErrRefreshToken, "a token response without an id_token cannot establish a session")
}

func TestParseAccessClaims(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        "user-1",
		"role":       "manager",
		"department": "Engineering",
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)

	role, department, err := oidcprovider.ParseAccessClaims(signed)
	require.NoError(t, err)
	require.Equal(t, "manager", role)
	require.Equal(t, "Engineering", department)
}

func TestParseAccessClaimsRejectsOpaqueToken(t *testing.T) {
	_, _, err := oidcprovider.ParseAccessClaims("opaque-token")
	require.Error(t, err)
}

func TestAccessClaimsWithoutSession(t *testing.T) {
	issuer := newTestIssuer(t)

	p, err := oidcprovider.New(context.Background(), oidcprovider.Config{
		IssuerURL: issuer.URL,
		ClientID:  "attendance-app",
	})
	require.NoError(t, err)

	_, _, err = p.AccessClaims()
	require.ErrorIs(t, err, interrors.ErrNoSession)
}

func TestSignOutWithoutSessionIsIdempotent(t *testing.T) {
	issuer := newTestIssuer(t)

	p, err := oidcprovider.New(context.Background(), oidcprovider.Config{
		IssuerURL: issuer.URL,
		ClientID:  "attendance-app",
	})
	require.NoError(t, err)

	require.NoError(t, p.SignOut(context.Background()))
	require.NoError(t, p.SignOut(context.Background()))
}
