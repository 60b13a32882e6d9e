package utilityapi

import "net/url"

// Endpoint paths of the utility API, relative to its base URL.
const (
	PathGetToken      = "/v3/user/get-token"
	PathVerifyClient  = "/v3/user/client/verify"
	PathOTPGenerate   = "/v3/user/otp/generate"
	PathOTPVerify     = "/v3/user/otp/verify"
	PathRegister      = "/v3/user/client/register"
	PathLogin         = "/v3/user/client/login"
	PathRefreshToken  = "/v3/user/client/refresh-token"
	PathLogout        = "/v3/user/client/logout"
	pathSocialLoginV3 = "/v3/user/client/login/"
)

// Success markers carried in the envelope message.
const (
	MessageTokenIssued = "ok"
	MessageSuccess     = "Action éffectuée avec succès"
)

// PathSocialLogin returns the social login path for provider (google, facebook).
func PathSocialLogin(provider string) string {
	return pathSocialLoginV3 + url.PathEscape(provider)
}
