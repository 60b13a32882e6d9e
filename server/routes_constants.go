package server

// Route path constants
// All gateway routes are defined here to ensure consistency and prevent typos
const (
	// Pages
	RouteHome      = "/"
	RouteLogin     = "/login"
	RouteRegister  = "/register"
	RoutePasscode  = "/passcode"
	RouteDashboard = "/dashboard"
	RouteProfile   = "/profile"
	RouteRequests  = "/requests"
	RouteBills     = "/bills"

	// Auth Routes - Login & Logout
	RouteAuthState      = "/auth/state"
	RouteAuthIdentifier = "/auth/identifier"
	RouteAuthPasscode   = "/auth/passcode"
	RouteAuthRestart    = "/auth/restart"
	RouteAuthLogout     = "/auth/logout"
	RouteAuthKeypad     = "/auth/keypad"

	// Auth Routes - Onboarding
	RouteAuthOTPGenerate = "/auth/otp/generate"
	RouteAuthOTPVerify   = "/auth/otp/verify"
	RouteAuthRegister    = "/auth/register"

	// Auth Routes - Social login
	RouteSocialLogin    = "/auth/social/{provider}"
	RouteSocialCallback = "/auth/social/{provider}/callback"

	// Utility API proxy
	RouteAPIPrefix = "/api"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)

// SocialCallbackPath is the redirect URI path registered with provider.
func SocialCallbackPath(provider string) string {
	return "/auth/social/" + provider + "/callback"
}
