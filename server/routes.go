package server

import (
	"net/http"
)

var protectedPages = []string{RouteDashboard, RouteProfile, RouteRequests, RouteBills}

func (s *Server) initRoutes() {
	// PAGES
	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.PageHandler("home"), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.PageHandler("login"), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteRegister, ChainMiddleware(s.PageHandler("register"), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RoutePasscode, ChainMiddleware(s.PageHandler("passcode"), s.PageMiddleware()...))
	for _, page := range protectedPages {
		handler := ChainMiddleware(s.PageHandler(page[1:]), s.PageMiddleware()...)
		s.RegisterRouteHandler("GET "+page, handler)
		s.RegisterRouteHandler("GET "+page+"/", handler)
	}

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteAuthState, ChainMiddleware(s.AuthStateHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthIdentifier, ChainMiddleware(s.IdentifierHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthPasscode, ChainMiddleware(s.PasscodeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRestart, ChainMiddleware(s.RestartHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthKeypad, ChainMiddleware(s.KeypadHandler(), s.APIMiddleware()...))

	// ONBOARDING
	s.RegisterRouteHandler("POST "+RouteAuthOTPGenerate, ChainMiddleware(s.GenerateOTPHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthOTPVerify, ChainMiddleware(s.VerifyOTPHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))

	// SOCIAL LOGIN
	s.RegisterRouteHandler("GET "+RouteSocialLogin, ChainMiddleware(s.SocialLoginHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSocialCallback, ChainMiddleware(s.SocialCallbackHandler(), s.HTMLMiddleware()...))

	// Utility API proxy (preflight included)
	s.RegisterRouteHandler(RouteAPIPrefix+"/", ChainMiddleware(s.APIProxyHandler(), s.APIMiddleware()...))

	// OPERATIONS
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.MetricsHandler())
}

// HealthHandler reports the process is serving.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
