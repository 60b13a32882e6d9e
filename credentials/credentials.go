// Package credentials is the portal's credential store: the per-browser
// key/value state that survives reloads (session tokens, user profile,
// pending login identifier) and the application-level API token.
package credentials

import (
	"time"

	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"golang.org/x/oauth2"
)

// Key names a persisted value.
type Key string

const (
	KeyToken          Key = "token"
	KeyRefreshToken   Key = "refreshToken"
	KeyUser           Key = "user"
	KeyCurrentLogin   Key = "currentLogin"
	KeyAPIToken       Key = "api_token"
	KeyAPITokenExpiry Key = "api_token_expiry"
	KeySocialState    Key = "social_state"
)

// AppContextID is the reserved context holding application-level values
// shared by every browser context.
const AppContextID = "_app"

// Session is the authenticated state of one browser context.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *utilityapi.User
}

// Authenticated reports whether both tokens are present. A partial pair is
// treated as unauthenticated.
func (s Session) Authenticated() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// APIToken is the application-level credential used by unauthenticated
// endpoints and as the fallback bearer.
type APIToken struct {
	Token  string
	Expiry time.Time
}

// ValidAt reports whether the token may still be used at now.
func (t APIToken) ValidAt(now time.Time) bool {
	return t.Token != "" && now.Before(t.Expiry)
}

// OAuth2 converts the token for use with golang.org/x/oauth2.
func (t APIToken) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.Token,
		TokenType:   "Bearer",
		Expiry:      t.Expiry,
	}
}
