package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-utility-portal/auth"
	"github.com/jrsteele09/go-utility-portal/credentials"
	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"github.com/rs/zerolog/log"
)

// SocialLoginHandler starts the provider's authorization code flow.
func (s *Server) SocialLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := s.social.Get(r.PathValue("provider"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		store := storeFrom(r)
		if state := s.auth.Resume(r.Context(), store); state.Phase == auth.PhaseAuthenticated {
			redirectSuccess(w, r, RouteHome)
			return
		}

		state := uuid.NewString()
		if err := store.SetValue(r.Context(), credentials.KeySocialState, state); err != nil {
			log.Err(err).Str("context", store.ContextID()).Msg("Saving social login state")
			redirectWithError(w, r, RouteLogin, auth.MsgRetry)
			return
		}

		authURL, err := provider.AuthCodeURL(r.Context(), state)
		if err != nil {
			log.Err(err).Str("provider", provider.Name()).Msg("Building social login url")
			redirectWithError(w, r, RouteLogin, auth.MsgServiceUnavailable)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// SocialCallbackHandler completes the provider flow and exchanges the
// provider token with the utility API for a portal session.
func (s *Server) SocialCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := s.social.Get(r.PathValue("provider"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		store := storeFrom(r)

		expected, err := store.Value(r.Context(), credentials.KeySocialState)
		if err != nil {
			log.Err(err).Str("context", store.ContextID()).Msg("Reading social login state")
		}
		if err := store.DeleteValue(r.Context(), credentials.KeySocialState); err != nil {
			log.Err(err).Str("context", store.ContextID()).Msg("Clearing social login state")
		}

		query := r.URL.Query()
		if expected == "" || query.Get("state") != expected {
			log.Warn().Err(portalerrors.ErrInvalidState).Str("provider", provider.Name()).Msg("Social login callback rejected")
			redirectWithError(w, r, RouteLogin, auth.MsgRetry)
			return
		}
		if reason := query.Get("error"); reason != "" {
			log.Info().Str("provider", provider.Name()).Str("reason", reason).Msg("Social login cancelled")
			redirectWithError(w, r, RouteLogin, auth.MsgLoginRejected)
			return
		}

		providerToken, err := provider.Exchange(r.Context(), query.Get("code"))
		if err != nil {
			log.Warn().Err(err).Str("provider", provider.Name()).Msg("Social login exchange failed")
			redirectWithError(w, r, RouteLogin, auth.MsgLoginRejected)
			return
		}

		state := s.auth.Resume(r.Context(), store)
		if state.Phase == auth.PhasePINEntry {
			state, _ = auth.Reduce(state, auth.Event{Type: auth.EventRestarted})
		}
		event := s.auth.SocialLogin(r.Context(), store, provider.Name(), providerToken)
		next, err := auth.Reduce(state, event)
		if err != nil || next.Phase != auth.PhaseAuthenticated {
			redirectWithError(w, r, RouteLogin, messageOrDefault(next.Message, event.Message))
			return
		}
		redirectSuccess(w, r, next.Redirect())
	}
}

func messageOrDefault(messages ...string) string {
	for _, m := range messages {
		if m != "" {
			return m
		}
	}
	return auth.MsgRetry
}
