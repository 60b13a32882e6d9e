package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-utility-portal/auth"
	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"github.com/jrsteele09/go-utility-portal/internal/metrics"
	"github.com/rs/zerolog/log"
)

// newAPIProxy forwards /api/* to the utility API. Credentials are attached by
// transport; the browser's own cookie and Authorization header never leave
// the gateway.
func newAPIProxy(target string, transport http.RoundTripper) (*httputil.ReverseProxy, error) {
	targetURL, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("[newAPIProxy] invalid utility api url %q: %w", target, err)
	}
	if targetURL.Scheme == "" || targetURL.Host == "" {
		return nil, fmt.Errorf("[newAPIProxy] utility api url %q must be absolute", target)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, RouteAPIPrefix)
			pr.Out.URL.RawPath = ""
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
			pr.SetURL(targetURL)
		},
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Set-Cookie")
			return nil
		},
		ErrorHandler: proxyErrorHandler,
	}, nil
}

func proxyErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case portalerrors.Is(err, portalerrors.ErrSessionExpired):
		log.Info().Err(err).Str("path", r.URL.Path).Msg("Session expired during api call")
		metrics.GuardRedirects.WithLabelValues(RouteHome).Inc()
		redirectSuccess(w, r, RouteHome)
	case portalerrors.Is(err, portalerrors.ErrAPITokenUnavailable):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("No api token for api call")
		writeJSONError(w, "service_unavailable", auth.MsgServiceUnavailable, http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Utility api unreachable")
		writeJSONError(w, "bad_gateway", auth.MsgServiceUnavailable, http.StatusBadGateway)
	}
}

// APIProxyHandler relays a browser call to the utility API with the browser
// context's credentials.
func (s *Server) APIProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.proxy.ServeHTTP(w, r)
	}
}

func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler(s.registry)
}
