package apitoken

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-utility-portal/utilityapi"
)

// Transport authorizes every request with the API token. It serves the
// endpoints that establish authentication (verify, OTP, register, login,
// refresh, social login) and never consults the user session.
type Transport struct {
	source Source
	base   http.RoundTripper
}

func NewTransport(source Source, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{source: source, base: base}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	out := req.Clone(req.Context())
	token.OAuth2().SetAuthHeader(out)
	utilityapi.SetJSONHeaders(out.Header)
	return t.base.RoundTrip(out)
}

// NewClient returns a utility API client on the application tier.
func NewClient(baseURL string, source Source, timeout time.Duration) *utilityapi.Client {
	return utilityapi.NewClient(baseURL, &http.Client{
		Transport: NewTransport(source, nil),
		Timeout:   timeout,
	})
}
