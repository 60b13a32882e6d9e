package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-utility-portal/credentials"
	"github.com/jrsteele09/go-utility-portal/internal/metrics"
	"github.com/rs/zerolog/log"
)

// BrowserContextMiddleware resolves the browser context from its cookie,
// issuing a new one on first visit, and attaches its credential store to
// the request context.
func (s *Server) BrowserContextMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contextID, ok := s.browserContextID(r)
		if !ok {
			contextID = uuid.NewString()
		}
		// Refresh the cookie on every visit so idle expiry slides
		s.SetBrowserContextCookie(w, r, contextID)

		ctx := credentials.WithStore(r.Context(), s.vault.Open(contextID))
		next(w, r.WithContext(ctx))
	}
}

// RouteGuardMiddleware redirects page navigations according to the guard
// rules. Browser back/forward arrives here as an ordinary GET.
func (s *Server) RouteGuardMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := credentials.FromContext(r.Context())
		if !ok {
			writeJSONError(w, "internal_error", "missing browser context", http.StatusInternalServerError)
			return
		}

		current, err := store.Session(r.Context())
		if err != nil {
			log.Err(err).Str("context", store.ContextID()).Msg("Reading session for route guard")
		}

		if target, redirect := s.rules.Redirect(r.URL.Path, current.Authenticated()); redirect {
			metrics.GuardRedirects.WithLabelValues(target).Inc()
			redirectSuccess(w, r, target)
			return
		}
		next(w, r)
	}
}

// storeFrom returns the request's credential store; BrowserContextMiddleware
// guarantees it for every registered route.
func storeFrom(r *http.Request) credentials.SessionStore {
	store, _ := credentials.FromContext(r.Context())
	return store
}
