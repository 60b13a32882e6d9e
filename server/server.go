package server

import (
	"fmt"
	"html/template"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/jrsteele09/go-utility-portal/apitoken"
	"github.com/jrsteele09/go-utility-portal/auth"
	"github.com/jrsteele09/go-utility-portal/credentials"
	"github.com/jrsteele09/go-utility-portal/guard"
	"github.com/jrsteele09/go-utility-portal/internal/config"
	"github.com/jrsteele09/go-utility-portal/internal/metrics"
	"github.com/jrsteele09/go-utility-portal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Deps holds the services the gateway is built on.
type Deps struct {
	Vault         *credentials.Vault
	Authenticator *auth.Authenticator
	APITokens     apitoken.Source
	Refresher     *session.Refresher
	Social        auth.SocialProviders
	Registry      *prometheus.Registry
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config

	vault    *credentials.Vault
	auth     *auth.Authenticator
	social   auth.SocialProviders
	rules    guard.Rules
	proxy    *httputil.ReverseProxy
	registry *prometheus.Registry
	page     *template.Template
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("[Server New] config is required")
	}
	if deps.Vault == nil {
		return nil, fmt.Errorf("[Server New] vault is required")
	}
	if deps.Authenticator == nil {
		return nil, fmt.Errorf("[Server New] authenticator is required")
	}
	if deps.APITokens == nil || deps.Refresher == nil {
		return nil, fmt.Errorf("[Server New] api token source and refresher are required")
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
		metrics.Register(deps.Registry)
	}

	proxy, err := newAPIProxy(cfg.GetUtilityAPIURL(), session.NewTransport(deps.APITokens, deps.Refresher, nil))
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create api proxy: %w", err)
	}
	page, err := ParseTemplate("page.html")
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse page template: %w", err)
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		vault:    deps.Vault,
		auth:     deps.Authenticator,
		social:   deps.Social,
		rules:    guard.PortalRules(),
		proxy:    proxy,
		registry: deps.Registry,
		page:     page,
	}
	if s.social == nil {
		s.social = auth.NewSocialProviders()
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
