package server

import (
	"net/http"

	"github.com/jrsteele09/go-utility-portal/auth"
	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"github.com/jrsteele09/go-utility-portal/internal/utils"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"github.com/rs/zerolog/log"
)

// AuthResponse is returned by every login step.
type AuthResponse struct {
	Phase       auth.Phase `json:"phase"`
	Message     string     `json:"message,omitempty"`
	Redirect    string     `json:"redirect"`
	Login       string     `json:"login,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
}

// OutcomeResponse is returned by the onboarding endpoints.
type OutcomeResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func newAuthResponse(state auth.State) AuthResponse {
	resp := AuthResponse{
		Phase:    state.Phase,
		Message:  state.Message,
		Redirect: state.Redirect(),
		Login:    state.Login,
	}
	if state.User != nil {
		resp.DisplayName = state.User.DisplayName()
	}
	return resp
}

// respondState writes the new state. Moving to another screen is signalled
// to htmx with HX-Redirect as well.
func respondState(w http.ResponseWriter, r *http.Request, before, after auth.State) {
	status := http.StatusOK
	if after.Phase == auth.PhaseFailed {
		status = http.StatusServiceUnavailable
	}
	if isHTMXRequest(r) && before.Redirect() != after.Redirect() {
		w.Header().Set("HX-Redirect", after.Redirect())
	}
	writeJSON(w, status, newAuthResponse(after))
}

// apply reduces event onto state, answering 409 when the event is not
// allowed in the current phase.
func apply(w http.ResponseWriter, r *http.Request, state auth.State, event auth.Event) {
	next, err := auth.Reduce(state, event)
	if err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected auth transition")
		writeJSON(w, http.StatusConflict, newAuthResponse(state))
		return
	}
	respondState(w, r, state, next)
}

// AuthStateHandler reports the browser context's login phase.
func (s *Server) AuthStateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.auth.Resume(r.Context(), storeFrom(r))
		writeJSON(w, http.StatusOK, newAuthResponse(state))
	}
}

// IdentifierHandler is phase one: verify the login identifier.
func (s *Server) IdentifierHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := decodeInput(w, r)
		if err != nil {
			writeJSONError(w, "invalid_request", "Invalid form data", http.StatusBadRequest)
			return
		}
		store := storeFrom(r)
		state := s.auth.Resume(r.Context(), store)
		if state.Phase == auth.PhaseAuthenticated {
			writeJSON(w, http.StatusConflict, newAuthResponse(state))
			return
		}

		// Submitting another identifier from the passcode screen switches account
		if state.Phase == auth.PhasePINEntry {
			if state, err = auth.Reduce(state, auth.Event{Type: auth.EventRestarted}); err != nil {
				writeJSON(w, http.StatusConflict, newAuthResponse(state))
				return
			}
		}

		event := s.auth.VerifyIdentifier(r.Context(), store, input["identifier"])
		apply(w, r, state, event)
	}
}

// PasscodeHandler is phase two: exchange the passcode for a session.
func (s *Server) PasscodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := decodeInput(w, r)
		if err != nil {
			writeJSONError(w, "invalid_request", "Invalid form data", http.StatusBadRequest)
			return
		}
		store := storeFrom(r)
		state := s.auth.Resume(r.Context(), store)
		switch {
		case state.Phase == auth.PhaseAuthenticated:
			writeJSON(w, http.StatusConflict, newAuthResponse(state))
			return
		case state.Phase == auth.PhaseIdentifierEntry && input["identifier"] != "":
			// identifier and passcode posted together from a single form
			state = auth.State{Phase: auth.PhasePINEntry, Login: input["identifier"]}
		}

		event := s.auth.Authenticate(r.Context(), store, input["identifier"], input["passcode"])
		apply(w, r, state, event)
	}
}

// RestartHandler returns to identifier entry ("change account").
func (s *Server) RestartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := storeFrom(r)
		state := s.auth.Resume(r.Context(), store)
		next, err := auth.Reduce(state, auth.Event{Type: auth.EventRestarted})
		if err != nil {
			writeJSON(w, http.StatusConflict, newAuthResponse(state))
			return
		}
		if err := store.ClearCurrentLogin(r.Context()); err != nil {
			log.Err(err).Str("context", store.ContextID()).Msg("Clearing current login")
		}
		respondState(w, r, state, next)
	}
}

// LogoutHandler ends the session. The session is cleared even when the
// browser context was not logged in.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := storeFrom(r)
		state := s.auth.Resume(r.Context(), store)
		event := s.auth.Logout(r.Context(), store)

		next, err := auth.Reduce(state, event)
		if err != nil {
			next = auth.State{Phase: auth.PhaseIdentifierEntry}
		}
		if isHTMXRequest(r) {
			w.Header().Set("HX-Redirect", RouteHome)
		}
		resp := newAuthResponse(next)
		resp.Redirect = RouteHome
		writeJSON(w, http.StatusOK, resp)
	}
}

// KeypadHandler returns the digits for the passcode keypad in a fresh order.
func (s *Server) KeypadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string][]int{"digits": auth.Keypad()})
	}
}

func (s *Server) GenerateOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := decodeInput(w, r)
		if err != nil {
			writeJSONError(w, "invalid_request", "Invalid form data", http.StatusBadRequest)
			return
		}
		message, err := s.auth.GenerateOTP(r.Context(), input["identifier"])
		respondOutcome(w, message, err)
	}
}

func (s *Server) VerifyOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := decodeInput(w, r)
		if err != nil {
			writeJSONError(w, "invalid_request", "Invalid form data", http.StatusBadRequest)
			return
		}
		message, err := s.auth.VerifyOTP(r.Context(), input["identifier"], input["code"])
		respondOutcome(w, message, err)
	}
}

// RegisterHandler creates an account; the browser context then continues to
// the passcode screen.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := decodeInput(w, r)
		if err != nil {
			writeJSONError(w, "invalid_request", "Invalid form data", http.StatusBadRequest)
			return
		}
		message, err := s.auth.Register(r.Context(), storeFrom(r), utilityapi.RegisterRequest{
			Login:     input["identifier"],
			Passcode:  input["passcode"],
			FirstName: utils.NonEmptyPtr(input["firstname"]),
			LastName:  utils.NonEmptyPtr(input["lastname"]),
			Email:     utils.NonEmptyPtr(input["email"]),
			Contact:   utils.NonEmptyPtr(input["contact"]),
		})
		if err == nil && isHTMXRequest(r) {
			w.Header().Set("HX-Redirect", RoutePasscode)
		}
		respondOutcome(w, message, err)
	}
}

func respondOutcome(w http.ResponseWriter, message string, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, OutcomeResponse{OK: true, Message: message})
	case portalerrors.Is(err, portalerrors.ErrInvalidIdentifier),
		portalerrors.Is(err, portalerrors.ErrInvalidPasscode),
		portalerrors.Is(err, portalerrors.ErrAuthenticationRejected):
		writeJSON(w, http.StatusBadRequest, OutcomeResponse{Message: message})
	case portalerrors.Is(err, portalerrors.ErrAPITokenUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, OutcomeResponse{Message: message})
	default:
		writeJSON(w, http.StatusBadGateway, OutcomeResponse{Message: message})
	}
}
