package server

import (
	"bytes"
	"net/http"

	"github.com/jrsteele09/go-utility-portal/auth"
	"github.com/rs/zerolog/log"
)

// PageData is rendered by templates/page.html.
type PageData struct {
	AppName     string
	Page        string
	Phase       auth.Phase
	Login       string
	DisplayName string
	Error       string
	Providers   []string
}

// PageHandler renders one of the portal's screens. The passcode screen is
// only shown once an identifier has been accepted.
func (s *Server) PageHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.auth.Resume(r.Context(), storeFrom(r))
		if name == "passcode" && state.Phase != auth.PhasePINEntry {
			redirectSuccess(w, r, state.Redirect())
			return
		}

		data := PageData{
			AppName:   s.config.GetAppName(),
			Page:      name,
			Phase:     state.Phase,
			Login:     state.Login,
			Error:     r.URL.Query().Get("error"),
			Providers: s.social.Names(),
		}
		if state.User != nil {
			data.DisplayName = state.User.DisplayName()
		}

		var buf bytes.Buffer
		if err := s.page.Execute(&buf, data); err != nil {
			log.Err(err).Str("page", name).Msg("Rendering page")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store")
		_, _ = buf.WriteTo(w)
	}
}
