package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/donmezahmet/ring-unlock/credstore"
	"github.com/donmezahmet/ring-unlock/ring"
	"github.com/donmezahmet/ring-unlock/session"
	"github.com/donmezahmet/ring-unlock/unlock"
)

const contentTypeJSON = "application/json; charset=utf-8"

type unlockResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// IndexHandler renders the home page with authentication status.
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("home.html")
	if err != nil {
		panic("Failed to parse home template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]interface{}{
			"AppName":       s.config.GetAppName(),
			"Authenticated": s.auth.IsAuthenticated(),
		}
		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render home template")
		}
	}
}

// HealthHandler reports process health and whether a session is stored.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "healthy",
			"authenticated": s.auth.IsAuthenticated(),
		})
	}
}

// UnlockHandler triggers the door unlock. This is the endpoint a phone
// shortcut calls with the shared secret.
func (s *Server) UnlockHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device, err := s.unlocker.PerformUnlock(r.Context())
		if err != nil {
			log.Err(err).Msg("unlock failed")
			writeJSONError(w, statusForError(err), userMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, unlockResponse{
			Success: true,
			Message: fmt.Sprintf("Door unlocked via %s!", device.Name),
		})
	}
}

// GetTokenHandler displays the current session as a base64 seed the operator
// can copy into the RING_TOKEN environment variable.
func (s *Server) GetTokenHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("token.html")
	if err != nil {
		panic("Failed to parse token template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.auth.CurrentSession()
		if err != nil {
			log.Err(err).Msg("Failed to load session for token page")
			writeJSONError(w, http.StatusInternalServerError, "Failed to load stored session")
			return
		}
		if sess == nil {
			s.renderError(w, "No authentication token is stored. Please authenticate first.")
			return
		}

		seed, err := credstore.EncodeSeed(sess)
		if err != nil {
			log.Err(err).Msg("Failed to encode session seed")
			writeJSONError(w, http.StatusInternalServerError, "Failed to encode token")
			return
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, map[string]interface{}{"TokenB64": seed}); err != nil {
			log.Err(err).Msg("Failed to render token template")
		}
	}
}

// statusForError maps the core's failure kinds to transport status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated),
		errors.Is(err, ring.ErrRefreshRejected),
		errors.Is(err, ring.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, unlock.ErrNoIntercomFound):
		return http.StatusBadRequest
	case errors.Is(err, ring.ErrDeviceUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, credstore.ErrStorage):
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// userMessage maps failure kinds to the remedy the user should take.
func userMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return "Not authenticated. Please visit /setup to authenticate."
	case errors.Is(err, ring.ErrRefreshRejected):
		return "Session expired and could not be refreshed. Please redo the login at /setup."
	case errors.Is(err, unlock.ErrNoIntercomFound):
		return fmt.Sprintf("No intercom found. %s", err.Error())
	case errors.Is(err, ring.ErrDeviceUnreachable):
		return "The intercom could not be reached. Try again shortly."
	case errors.Is(err, credstore.ErrStorage):
		return "Credential storage failure. Check the server logs."
	}
	return fmt.Sprintf("Error unlocking door: %s", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, unlockResponse{Success: false, Error: message})
}
