// Package guard decides where a page navigation should go given whether the
// browser context is logged in. It is advisory: the utility API authorizes
// every data request itself.
package guard

import "strings"

const (
	DefaultLoginPath = "/login"
	DefaultHomePath  = "/"
)

// Rules lists the guarded pages.
type Rules struct {
	// Protected pages need a session; a page matches itself and its subpaths.
	Protected []string
	// AuthOnly pages are for anonymous visitors only; matched exactly.
	AuthOnly  []string
	LoginPath string
	HomePath  string
}

// PortalRules are the portal's guarded pages.
func PortalRules() Rules {
	return Rules{
		Protected: []string{"/dashboard", "/profile", "/requests", "/bills"},
		AuthOnly:  []string{"/login", "/register", "/passcode"},
		LoginPath: DefaultLoginPath,
		HomePath:  DefaultHomePath,
	}
}

// Redirect returns where path should send the visitor, and false when the
// navigation may proceed.
func (r Rules) Redirect(path string, authenticated bool) (string, bool) {
	path = normalize(path)
	if !authenticated && r.IsProtected(path) {
		return r.loginPath(), true
	}
	if authenticated && r.IsAuthOnly(path) {
		return r.homePath(), true
	}
	return "", false
}

func (r Rules) IsProtected(path string) bool {
	path = normalize(path)
	for _, p := range r.Protected {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func (r Rules) IsAuthOnly(path string) bool {
	path = normalize(path)
	for _, p := range r.AuthOnly {
		if path == p {
			return true
		}
	}
	return false
}

func (r Rules) loginPath() string {
	if r.LoginPath == "" {
		return DefaultLoginPath
	}
	return r.LoginPath
}

func (r Rules) homePath() string {
	if r.HomePath == "" {
		return DefaultHomePath
	}
	return r.HomePath
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
