package apifake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
)

const (
	DefaultAPIKey   = "test-api-key"
	DefaultAPIToken = "api-token-1"
	signingKey      = "fake-utility-api"
)

// Account is a customer known to the fake API.
type Account struct {
	Passcode string
	User     utilityapi.User
}

// Request is a recorded call.
type Request struct {
	Authorization string
	Body          map[string]any
}

// FakeUtilityAPI is an httptest server implementing the utility API contract
// closely enough for the portal's tests. Individual endpoints can be replaced
// with Handle.
type FakeUtilityAPI struct {
	Server *httptest.Server

	APIKey    string
	APIToken  string
	AccessTTL time.Duration
	// RotateRefresh invalidates a refresh token once it has been used.
	RotateRefresh bool

	mu            sync.Mutex
	accounts      map[string]Account
	refreshTokens map[string]string // refresh token -> login
	accessTokens  map[string]string // access token -> login
	requests      map[string][]Request
	overrides     map[string]http.HandlerFunc
	sequence      int
}

// NewFakeUtilityAPI starts a fake API that is closed with the test.
func NewFakeUtilityAPI(t testing.TB) *FakeUtilityAPI {
	t.Helper()
	f := &FakeUtilityAPI{
		APIKey:        DefaultAPIKey,
		APIToken:      DefaultAPIToken,
		AccessTTL:     time.Hour,
		accounts:      make(map[string]Account),
		refreshTokens: make(map[string]string),
		accessTokens:  make(map[string]string),
		requests:      make(map[string][]Request),
		overrides:     make(map[string]http.HandlerFunc),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL of the fake API.
func (f *FakeUtilityAPI) URL() string {
	return f.Server.URL
}

// AddAccount registers a customer.
func (f *FakeUtilityAPI) AddAccount(login, passcode string, user utilityapi.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.Login = login
	f.accounts[login] = Account{Passcode: passcode, User: user}
}

// IssueSession mints a session pair for login as if it had logged in.
func (f *FakeUtilityAPI) IssueSession(login string, expiry time.Time) (access, refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueLocked(login, expiry)
}

// Handle replaces the handler for path.
func (f *FakeUtilityAPI) Handle(path string, handler http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[path] = handler
}

// Calls returns how many requests reached path.
func (f *FakeUtilityAPI) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests[path])
}

// Requests returns the recorded requests for path.
func (f *FakeUtilityAPI) Requests(path string) []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests[path]...)
}

// MintAccessToken returns a signed JWT whose exp claim is expiry.
func MintAccessToken(subject string, expiry time.Time) string {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiry),
		IssuedAt:  jwt.NewNumericDate(expiry.Add(-time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		panic(fmt.Sprintf("mint access token: %v", err))
	}
	return signed
}

// WriteEnvelope writes a utility API envelope.
func WriteEnvelope(w http.ResponseWriter, status int, message string, data any) {
	body := map[string]any{"message": message}
	if data != nil {
		body["data"] = data
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *FakeUtilityAPI) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.requests[r.URL.Path] = append(f.requests[r.URL.Path], Request{
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	override := f.overrides[r.URL.Path]
	f.mu.Unlock()

	if override != nil {
		override(w, r)
		return
	}

	switch {
	case r.URL.Path == utilityapi.PathGetToken:
		f.getToken(w, body)
	case r.URL.Path == utilityapi.PathVerifyClient:
		f.withAPIToken(w, r, func() { f.verify(w, body) })
	case r.URL.Path == utilityapi.PathLogin:
		f.withAPIToken(w, r, func() { f.login(w, body) })
	case r.URL.Path == utilityapi.PathRefreshToken:
		f.withAPIToken(w, r, func() { f.refresh(w, body) })
	case r.URL.Path == utilityapi.PathOTPGenerate,
		r.URL.Path == utilityapi.PathOTPVerify,
		r.URL.Path == utilityapi.PathRegister:
		f.withAPIToken(w, r, func() { WriteEnvelope(w, http.StatusOK, utilityapi.MessageSuccess, nil) })
	case strings.HasPrefix(r.URL.Path, utilityapi.PathSocialLogin("")):
		f.withAPIToken(w, r, func() { f.socialLogin(w, strings.TrimPrefix(r.URL.Path, utilityapi.PathSocialLogin("")), body) })
	case r.URL.Path == utilityapi.PathLogout:
		f.withUserToken(w, r, func(string) { WriteEnvelope(w, http.StatusOK, utilityapi.MessageSuccess, nil) })
	default:
		f.withUserToken(w, r, func(login string) {
			WriteEnvelope(w, http.StatusOK, utilityapi.MessageSuccess, map[string]any{
				"path":  r.URL.Path,
				"login": login,
			})
		})
	}
}

func (f *FakeUtilityAPI) getToken(w http.ResponseWriter, body map[string]any) {
	if key, _ := body["apikey"].(string); key != f.APIKey {
		WriteEnvelope(w, http.StatusUnauthorized, "Clé API invalide", nil)
		return
	}
	WriteEnvelope(w, http.StatusOK, utilityapi.MessageTokenIssued, f.APIToken)
}

func (f *FakeUtilityAPI) verify(w http.ResponseWriter, body map[string]any) {
	login, _ := body["login"].(string)
	f.mu.Lock()
	_, ok := f.accounts[login]
	f.mu.Unlock()
	if !ok {
		WriteEnvelope(w, http.StatusOK, "Compte introuvable", nil)
		return
	}
	WriteEnvelope(w, http.StatusOK, utilityapi.MessageSuccess, map[string]any{"login": login})
}

func (f *FakeUtilityAPI) login(w http.ResponseWriter, body map[string]any) {
	login, _ := body["login"].(string)
	passcode, _ := body["passcode"].(string)

	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[login]
	if !ok || account.Passcode != passcode {
		WriteEnvelope(w, http.StatusBadRequest, "Code invalide", nil)
		return
	}
	access, refresh := f.issueLocked(login, time.Now().Add(f.AccessTTL))
	WriteEnvelope(w, http.StatusOK, utilityapi.MessageSuccess, utilityapi.LoginData{
		Token:        access,
		RefreshToken: refresh,
		User:         &account.User,
	})
}

func (f *FakeUtilityAPI) socialLogin(w http.ResponseWriter, provider string, body map[string]any) {
	token, _ := body["token"].(string)
	if token == "" || (provider != "google" && provider != "facebook") {
		WriteEnvelope(w, http.StatusBadRequest, "Connexion sociale refusée", nil)
		return
	}
	login := provider + ":" + token

	f.mu.Lock()
	defer f.mu.Unlock()
	access, refresh := f.issueLocked(login, time.Now().Add(f.AccessTTL))
	WriteEnvelope(w, http.StatusOK, utilityapi.MessageSuccess, utilityapi.LoginData{
		Token:        access,
		RefreshToken: refresh,
		User:         &utilityapi.User{ID: "social", Login: login},
	})
}

func (f *FakeUtilityAPI) refresh(w http.ResponseWriter, body map[string]any) {
	old, _ := body["refreshToken"].(string)

	f.mu.Lock()
	defer f.mu.Unlock()
	login, ok := f.refreshTokens[old]
	if !ok {
		WriteEnvelope(w, http.StatusUnauthorized, "Token invalide", nil)
		return
	}
	if f.RotateRefresh {
		delete(f.refreshTokens, old)
	}
	access, refresh := f.issueLocked(login, time.Now().Add(f.AccessTTL))
	WriteEnvelope(w, http.StatusOK, utilityapi.MessageSuccess, utilityapi.RefreshData{
		Token:        access,
		RefreshToken: refresh,
	})
}

func (f *FakeUtilityAPI) issueLocked(login string, expiry time.Time) (string, string) {
	f.sequence++
	access := MintAccessToken(fmt.Sprintf("%s#%d", login, f.sequence), expiry)
	refresh := fmt.Sprintf("refresh-%d", f.sequence)
	f.accessTokens[access] = login
	f.refreshTokens[refresh] = login
	return access, refresh
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (f *FakeUtilityAPI) withAPIToken(w http.ResponseWriter, r *http.Request, next func()) {
	if bearer(r) != f.APIToken {
		WriteEnvelope(w, http.StatusUnauthorized, "Non autorisé", nil)
		return
	}
	next()
}

func (f *FakeUtilityAPI) withUserToken(w http.ResponseWriter, r *http.Request, next func(login string)) {
	f.mu.Lock()
	login, ok := f.accessTokens[bearer(r)]
	f.mu.Unlock()
	if !ok {
		WriteEnvelope(w, http.StatusUnauthorized, "Non autorisé", nil)
		return
	}
	next(login)
}
