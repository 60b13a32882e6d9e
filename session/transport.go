package session

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-utility-portal/apitoken"
	"github.com/jrsteele09/go-utility-portal/credentials"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"golang.org/x/oauth2"
)

// Transport authorizes requests for the browser context found in the request
// context: the user's access token when logged in, else the API token.
type Transport struct {
	apiTokens apitoken.Source
	refresher *Refresher
	base      http.RoundTripper
}

func NewTransport(apiTokens apitoken.Source, refresher *Refresher, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{apiTokens: apiTokens, refresher: refresher, base: base}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// The API token is required even when a user token will be sent.
	apiToken, err := t.apiTokens.Token(ctx)
	if err != nil {
		closeBody(req)
		return nil, err
	}
	bearer := apiToken.OAuth2()

	if store, ok := credentials.FromContext(ctx); ok {
		access, err := t.refresher.AccessToken(ctx, store)
		if err != nil {
			closeBody(req)
			return nil, err
		}
		if access != "" {
			bearer = &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
		}
	}

	out := req.Clone(ctx)
	bearer.SetAuthHeader(out)
	utilityapi.SetJSONHeaders(out.Header)
	return t.base.RoundTrip(out)
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// NewClient returns a utility API client on the session tier.
func NewClient(baseURL string, apiTokens apitoken.Source, refresher *Refresher, timeout time.Duration) *utilityapi.Client {
	return utilityapi.NewClient(baseURL, &http.Client{
		Transport: NewTransport(apiTokens, refresher, nil),
		Timeout:   timeout,
	})
}
