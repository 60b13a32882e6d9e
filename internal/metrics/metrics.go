package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeNotFound = "not_found"
	OutcomeFailure  = "failure"
)

var (
	APITokenIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_api_token_issuance_total",
			Help: "Application API token issuance calls by outcome.",
		},
		[]string{"outcome"},
	)
	SessionRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_session_refresh_total",
			Help: "Session token refresh calls by outcome.",
		},
		[]string{"outcome"},
	)
	IdentifierChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_identifier_check_total",
			Help: "Identifier verification calls by outcome.",
		},
		[]string{"outcome"},
	)
	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_login_total",
			Help: "Login attempts by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	GuardRedirects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_route_guard_redirects_total",
			Help: "Route guard redirects by target path.",
		},
		[]string{"target"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "Duration of gateway HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

func Register(registry prometheus.Registerer) {
	registry.MustRegister(APITokenIssued, SessionRefreshes, IdentifierChecks, Logins, GuardRedirects, RequestDuration)
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
