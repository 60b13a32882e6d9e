package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"

	maxFormSize = 64 << 10
)

// SetBrowserContextCookie issues the cookie identifying a browser context.
func (s *Server) SetBrowserContextCookie(w http.ResponseWriter, r *http.Request, contextID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    contextID,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.config.GetSessionMaxAge().Seconds()),
	})
}

// browserContextID returns the context id carried by the request cookie, or
// false when it is missing or not a UUID.
func (s *Server) browserContextID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.config.GetSessionCookieName())
	if err != nil || cookie.Value == "" {
		return "", false
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	fullPath := path + "?error=" + url.QueryEscape(errorMsg)

	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", fullPath)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, fullPath, http.StatusSeeOther)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// decodeInput reads a JSON body or a form post into fields.
func decodeInput(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		fields := make(map[string]string)
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormSize)).Decode(&fields); err != nil {
			return nil, err
		}
		return fields, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}
	return fields, nil
}
