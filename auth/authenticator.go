// Package auth runs the portal's two-phase login (identifier, then
// passcode) and the related account flows against the utility API.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-utility-portal/credentials"
	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"github.com/jrsteele09/go-utility-portal/internal/metrics"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Login methods recorded in metrics.
const (
	MethodPasscode = "passcode"
)

// Authenticator talks to the utility API on behalf of one browser context at
// a time. It never returns transport errors from the login flow; they become
// events carrying a message for the user.
type Authenticator struct {
	appClient     *utilityapi.Client // authorized with the API token
	sessionClient *utilityapi.Client // authorized with the user's session
}

// NewAuthenticator requires a client on the application tier (verify, login,
// OTP, register, social login) and one on the session tier (logout).
func NewAuthenticator(appClient, sessionClient *utilityapi.Client) (*Authenticator, error) {
	if appClient == nil {
		return nil, errors.New("[NewAuthenticator] app client is required")
	}
	if sessionClient == nil {
		return nil, errors.New("[NewAuthenticator] session client is required")
	}
	return &Authenticator{
		appClient:     appClient,
		sessionClient: sessionClient,
	}, nil
}

// Resume derives the login state from what store has persisted.
func (a *Authenticator) Resume(ctx context.Context, store credentials.SessionStore) State {
	current, err := store.Session(ctx)
	if err != nil {
		log.Err(err).Str("context", store.ContextID()).Msg("Reading session")
		return State{Phase: PhaseIdentifierEntry}
	}
	if current.Authenticated() {
		state := State{Phase: PhaseAuthenticated, User: current.User}
		if current.User != nil {
			state.Login = current.User.Login
		}
		return state
	}

	login, err := store.CurrentLogin(ctx)
	if err != nil {
		log.Err(err).Str("context", store.ContextID()).Msg("Reading current login")
		return State{Phase: PhaseIdentifierEntry}
	}
	if login != "" {
		return State{Phase: PhasePINEntry, Login: login}
	}
	return State{Phase: PhaseIdentifierEntry}
}

// VerifyIdentifier checks the identifier is a known account and remembers it
// for the passcode step.
func (a *Authenticator) VerifyIdentifier(ctx context.Context, store credentials.SessionStore, identifier string) Event {
	login, err := NormalizeIdentifier(identifier)
	if err != nil {
		return Event{Type: EventInputRejected, Message: MsgInvalidIdentifier}
	}

	resp, err := a.appClient.Post(ctx, utilityapi.PathVerifyClient, utilityapi.VerifyRequest{Login: login})
	if err != nil {
		metrics.IdentifierChecks.WithLabelValues(metrics.OutcomeFailure).Inc()
		return failureEvent(err, "[VerifyIdentifier]")
	}
	if serverFault(resp) {
		metrics.IdentifierChecks.WithLabelValues(metrics.OutcomeFailure).Inc()
		log.Warn().Int("status", resp.StatusCode).Str("message", resp.Message).Msg("[VerifyIdentifier] utility api error")
		return Event{Type: EventRequestFailed, Login: login, Message: MsgRetry}
	}
	if !resp.HasData() {
		metrics.IdentifierChecks.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return Event{Type: EventIdentifierNotFound, Login: login, Message: messageOr(resp.Message, MsgAccountNotFound)}
	}

	if err := store.SetCurrentLogin(ctx, login); err != nil {
		metrics.IdentifierChecks.WithLabelValues(metrics.OutcomeFailure).Inc()
		log.Err(err).Str("context", store.ContextID()).Msg("Saving current login")
		return Event{Type: EventRequestFailed, Message: MsgRetry}
	}
	metrics.IdentifierChecks.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return Event{Type: EventIdentifierAccepted, Login: login}
}

// Authenticate exchanges identifier and passcode for a session. An empty
// identifier falls back to the one remembered by VerifyIdentifier. Nothing
// is written to store unless the login succeeds.
func (a *Authenticator) Authenticate(ctx context.Context, store credentials.SessionStore, identifier, passcode string) Event {
	if strings.TrimSpace(identifier) == "" {
		remembered, err := store.CurrentLogin(ctx)
		if err != nil {
			log.Err(err).Str("context", store.ContextID()).Msg("Reading current login")
			return Event{Type: EventRequestFailed, Message: MsgRetry}
		}
		identifier = remembered
	}
	login, err := NormalizeIdentifier(identifier)
	if err != nil {
		return Event{Type: EventInputRejected, Message: MsgInvalidIdentifier}
	}
	if err := ValidatePasscode(passcode); err != nil {
		return Event{Type: EventInputRejected, Login: login, Message: MsgInvalidPasscode}
	}

	resp, err := a.appClient.Post(ctx, utilityapi.PathLogin, utilityapi.LoginRequest{Login: login, Passcode: passcode})
	if err != nil {
		metrics.Logins.WithLabelValues(MethodPasscode, metrics.OutcomeFailure).Inc()
		return failureEvent(err, "[Authenticate]")
	}
	return a.establishSession(ctx, store, MethodPasscode, login, resp)
}

// SocialLogin exchanges a provider token (Google ID token, Facebook access
// token) for a session.
func (a *Authenticator) SocialLogin(ctx context.Context, store credentials.SessionStore, provider, providerToken string) Event {
	if !IsSocialProvider(provider) {
		return Event{Type: EventInputRejected, Message: MsgUnknownProvider}
	}
	if providerToken == "" {
		return Event{Type: EventRequestFailed, Message: MsgRetry}
	}

	resp, err := a.appClient.Post(ctx, utilityapi.PathSocialLogin(provider), utilityapi.SocialLoginRequest{Token: providerToken})
	if err != nil {
		metrics.Logins.WithLabelValues(provider, metrics.OutcomeFailure).Inc()
		return failureEvent(err, "[SocialLogin]")
	}
	return a.establishSession(ctx, store, provider, "", resp)
}

func (a *Authenticator) establishSession(ctx context.Context, store credentials.SessionStore, method, login string, resp *utilityapi.Response) Event {
	if serverFault(resp) {
		metrics.Logins.WithLabelValues(method, metrics.OutcomeFailure).Inc()
		log.Warn().Int("status", resp.StatusCode).Str("method", method).Str("message", resp.Message).Msg("Utility api error during login")
		return Event{Type: EventRequestFailed, Login: login, Message: MsgRetry}
	}
	if !resp.HasData() || resp.Message != utilityapi.MessageSuccess {
		metrics.Logins.WithLabelValues(method, metrics.OutcomeRejected).Inc()
		return Event{Type: EventLoginRejected, Login: login, Message: messageOr(resp.Message, MsgLoginRejected)}
	}

	var data utilityapi.LoginData
	if err := resp.Decode(&data); err != nil || data.Token == "" || data.RefreshToken == "" || data.User == nil {
		metrics.Logins.WithLabelValues(method, metrics.OutcomeFailure).Inc()
		log.Warn().Err(err).Str("method", method).Str("message", resp.Message).Msg("Unexpected login response")
		return Event{Type: EventRequestFailed, Login: login, Message: MsgRetry}
	}

	if err := store.SaveSession(ctx, credentials.Session{
		AccessToken:  data.Token,
		RefreshToken: data.RefreshToken,
		User:         data.User,
	}); err != nil {
		metrics.Logins.WithLabelValues(method, metrics.OutcomeFailure).Inc()
		log.Err(err).Str("context", store.ContextID()).Msg("Saving session")
		return Event{Type: EventRequestFailed, Login: login, Message: MsgRetry}
	}

	metrics.Logins.WithLabelValues(method, metrics.OutcomeSuccess).Inc()
	if login == "" {
		login = data.User.Login
	}
	log.Info().Str("context", store.ContextID()).Str("method", method).Msg("User logged in")
	return Event{Type: EventLoginSucceeded, Login: login, User: data.User}
}

// Logout tells the utility API the session is over, then clears it locally
// whatever the API answered.
func (a *Authenticator) Logout(ctx context.Context, store credentials.SessionStore) Event {
	current, err := store.Session(ctx)
	if err != nil {
		log.Err(err).Str("context", store.ContextID()).Msg("Reading session for logout")
	}

	if current.AccessToken != "" {
		resp, err := a.sessionClient.Post(credentials.WithStore(ctx, store), utilityapi.PathLogout, utilityapi.LogoutRequest{Token: current.AccessToken})
		switch {
		case err != nil:
			log.Warn().Err(errors.Wrap(err, "[Logout] notify utility api")).Msg("Logout request failed")
		case !resp.OK():
			log.Warn().Int("status", resp.StatusCode).Str("message", resp.Message).Msg("Logout rejected by utility api")
		}
	}

	if err := store.ClearSession(ctx); err != nil {
		log.Err(err).Str("context", store.ContextID()).Msg("Clearing session")
	}
	if err := store.ClearCurrentLogin(ctx); err != nil {
		log.Err(err).Str("context", store.ContextID()).Msg("Clearing current login")
	}
	return Event{Type: EventLoggedOut}
}

// GenerateOTP sends a one-time code to the identifier. The returned message
// is the API's own, for display.
func (a *Authenticator) GenerateOTP(ctx context.Context, identifier string) (string, error) {
	login, err := NormalizeIdentifier(identifier)
	if err != nil {
		return MsgInvalidIdentifier, err
	}
	resp, err := a.appClient.Post(ctx, utilityapi.PathOTPGenerate, utilityapi.OTPGenerateRequest{Login: login})
	return outcome(resp, err, "[GenerateOTP]")
}

// VerifyOTP checks a one-time code.
func (a *Authenticator) VerifyOTP(ctx context.Context, identifier, code string) (string, error) {
	login, err := NormalizeIdentifier(identifier)
	if err != nil {
		return MsgInvalidIdentifier, err
	}
	resp, err := a.appClient.Post(ctx, utilityapi.PathOTPVerify, utilityapi.OTPVerifyRequest{Login: login, Code: strings.TrimSpace(code)})
	return outcome(resp, err, "[VerifyOTP]")
}

// Register creates an account. On success the identifier is remembered so
// the user continues straight to the passcode step.
func (a *Authenticator) Register(ctx context.Context, store credentials.SessionStore, req utilityapi.RegisterRequest) (string, error) {
	login, err := NormalizeIdentifier(req.Login)
	if err != nil {
		return MsgInvalidIdentifier, err
	}
	if err := ValidatePasscode(req.Passcode); err != nil {
		return MsgInvalidPasscode, err
	}
	req.Login = login

	resp, err := a.appClient.Post(ctx, utilityapi.PathRegister, req)
	message, err := outcome(resp, err, "[Register]")
	if err != nil {
		return message, err
	}
	if err := store.SetCurrentLogin(ctx, login); err != nil {
		log.Err(err).Str("context", store.ContextID()).Msg("Saving current login")
	}
	return message, nil
}

func outcome(resp *utilityapi.Response, err error, op string) (string, error) {
	if err != nil {
		log.Err(err).Msg(op + " request failed")
		if portalerrors.Is(err, portalerrors.ErrAPITokenUnavailable) {
			return MsgServiceUnavailable, errors.Wrap(err, op)
		}
		return MsgRetry, errors.Wrap(err, op)
	}
	if serverFault(resp) {
		log.Warn().Int("status", resp.StatusCode).Str("message", resp.Message).Msg(op + " utility api error")
		return MsgRetry, errors.Wrapf(portalerrors.ErrUnexpectedResponse, "%s status %d", op, resp.StatusCode)
	}
	if !resp.OK() {
		message := messageOr(resp.Message, MsgRetry)
		return message, errors.Wrap(portalerrors.ErrAuthenticationRejected, op+" "+message)
	}
	return resp.Message, nil
}

// serverFault reports a 5xx reply. Its message describes the server's
// failure, not the user's input, so it is never shown as a rejection.
func serverFault(resp *utilityapi.Response) bool {
	return resp.StatusCode >= http.StatusInternalServerError
}

func failureEvent(err error, op string) Event {
	if portalerrors.Is(err, portalerrors.ErrAPITokenUnavailable) {
		log.Err(err).Msg(op + " api token unavailable")
		return Event{Type: EventProvisioningFailed, Message: MsgServiceUnavailable}
	}
	log.Err(err).Msg(op + " request failed")
	return Event{Type: EventRequestFailed, Message: MsgRetry}
}

func messageOr(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}
