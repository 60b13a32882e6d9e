package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jrsteele09/go-utility-portal/auth"
	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTokenEndpoint(t *testing.T, body map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFacebookProvider(t *testing.T) {
	srv := newTokenEndpoint(t, map[string]any{
		"access_token": "fb-user-token",
		"token_type":   "bearer",
		"expires_in":   3600,
	})
	provider := auth.NewFacebookProvider(oauth2.Config{
		ClientID:     "fb-client",
		ClientSecret: "fb-secret",
		RedirectURL:  "http://portal.test/auth/social/facebook/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/dialog/oauth", TokenURL: srv.URL + "/oauth/access_token"},
	})
	require.Equal(t, auth.ProviderFacebook, provider.Name())

	authURL, err := provider.AuthCodeURL(context.Background(), "state-1")
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "state-1", parsed.Query().Get("state"))
	require.Equal(t, "fb-client", parsed.Query().Get("client_id"))
	require.Equal(t, "email public_profile", parsed.Query().Get("scope"))

	token, err := provider.Exchange(context.Background(), "code-1")
	require.NoError(t, err)
	require.Equal(t, "fb-user-token", token)
}

func TestFacebookProvider_DefaultsToFacebookEndpoint(t *testing.T) {
	provider := auth.NewFacebookProvider(oauth2.Config{ClientID: "fb-client"})
	authURL, err := provider.AuthCodeURL(context.Background(), "s")
	require.NoError(t, err)
	require.Contains(t, authURL, "facebook.com")
}

func newDiscoveryServer(t *testing.T, tokenBody map[string]any) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/o/oauth2/auth",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/certs",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenBody)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	srv := newDiscoveryServer(t, nil)
	provider := auth.NewGoogleProvider(oauth2.Config{
		ClientID:    "google-client",
		RedirectURL: "http://portal.test/auth/social/google/callback",
	}, srv.URL)
	require.Equal(t, auth.ProviderGoogle, provider.Name())

	authURL, err := provider.AuthCodeURL(context.Background(), "state-2")
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "/o/oauth2/auth", parsed.Path)
	require.Equal(t, "state-2", parsed.Query().Get("state"))
	require.Equal(t, "openid profile email", parsed.Query().Get("scope"))
}

func TestGoogleProvider_ExchangeRequiresIDToken(t *testing.T) {
	srv := newDiscoveryServer(t, map[string]any{
		"access_token": "google-access",
		"token_type":   "bearer",
	})
	provider := auth.NewGoogleProvider(oauth2.Config{ClientID: "google-client"}, srv.URL)

	_, err := provider.Exchange(context.Background(), "code")
	require.ErrorIs(t, err, portalerrors.ErrUnexpectedResponse)
}

func TestGoogleProvider_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	provider := auth.NewGoogleProvider(oauth2.Config{ClientID: "google-client"}, srv.URL)

	_, err := provider.AuthCodeURL(context.Background(), "s")
	require.Error(t, err)
}

func TestSocialProviders(t *testing.T) {
	providers := auth.NewSocialProviders(auth.NewFacebookProvider(oauth2.Config{ClientID: "fb"}))

	p, err := providers.Get(auth.ProviderFacebook)
	require.NoError(t, err)
	require.Equal(t, auth.ProviderFacebook, p.Name())

	_, err = providers.Get(auth.ProviderGoogle)
	require.ErrorIs(t, err, portalerrors.ErrUnknownProvider)
	require.True(t, auth.IsSocialProvider(auth.ProviderGoogle))
	require.False(t, auth.IsSocialProvider("twitter"))

	providers = auth.NewSocialProviders(
		auth.NewGoogleProvider(oauth2.Config{ClientID: "g"}, auth.GoogleIssuer),
		auth.NewFacebookProvider(oauth2.Config{ClientID: "fb"}),
	)
	require.Equal(t, []string{auth.ProviderFacebook, auth.ProviderGoogle}, providers.Names())
}
