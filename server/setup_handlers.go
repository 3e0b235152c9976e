package server

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/donmezahmet/ring-unlock/credstore"
	"github.com/donmezahmet/ring-unlock/ring"
	"github.com/donmezahmet/ring-unlock/session"
)

// SetupPageHandler shows the one-time credential form, or the already-done
// state when a session exists.
func (s *Server) SetupPageHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("setup.html")
	if err != nil {
		panic("Failed to parse setup template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]interface{}{
			"Authenticated": s.auth.IsAuthenticated(),
			"Username":      s.config.GetVendorUsername(),
		}
		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render setup template")
		}
	}
}

// AuthenticateHandler handles the credential submission, which normally
// triggers the vendor's two-factor challenge.
func (s *Server) AuthenticateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		username := r.FormValue("username")
		password := r.FormValue("password")
		if username == "" || password == "" {
			s.renderError(w, "Email and password are required.")
			return
		}

		token, err := s.auth.BeginAuthentication(r.Context(), username, password)
		if err != nil {
			log.Err(err).Msg("first-factor login failed")
			if errors.Is(err, ring.ErrInvalidCredentials) {
				s.renderError(w, "The email or password was not accepted.")
				return
			}
			s.renderError(w, "Authentication failed: "+err.Error())
			return
		}

		// No second factor on this account: the session is already persisted.
		if token == "" {
			s.renderSuccess(w, "Connected! Your account is now linked.")
			return
		}

		s.renderTwoFactorForm(w, "")
	}
}

// VerifyTwoFactorHandler handles the one-time code submission.
func (s *Server) VerifyTwoFactorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		code := r.FormValue("code")

		err := s.auth.CompleteAuthentication(r.Context(), code)
		switch {
		case err == nil:
			s.renderSuccess(w, "All set! Your account is connected and the unlock endpoint is ready.")
		case errors.Is(err, session.ErrNoPendingAttempt):
			s.renderError(w, "No login in progress. Start again from the setup page.")
		case errors.Is(err, ring.ErrInvalidCode):
			// The attempt is still pending; let the user retype the code.
			s.renderTwoFactorForm(w, "That code was not accepted. Try again.")
		case errors.Is(err, ring.ErrCodeExpired):
			s.renderError(w, "The verification code expired. Start again from the setup page.")
		default:
			log.Err(err).Msg("two-factor verification failed")
			s.renderError(w, "Verification failed: "+err.Error())
		}
	}
}

func (s *Server) renderTwoFactorForm(w http.ResponseWriter, errorMsg string) {
	tmpl, err := ParseTemplate("twofactor.html")
	if err != nil {
		log.Err(err).Msg("Failed to parse twofactor template")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	if err := tmpl.Execute(w, map[string]interface{}{"Error": errorMsg}); err != nil {
		log.Err(err).Msg("Failed to render twofactor template")
	}
}

func (s *Server) renderSuccess(w http.ResponseWriter, message string) {
	tmpl, err := ParseTemplate("success.html")
	if err != nil {
		log.Err(err).Msg("Failed to parse success template")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Offer the seed for env-var storage on hosts without durable disks.
	var seed string
	if sess, err := s.auth.CurrentSession(); err == nil && sess != nil {
		if encoded, err := credstore.EncodeSeed(sess); err == nil {
			seed = encoded
		}
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	if err := tmpl.Execute(w, map[string]interface{}{"Message": message, "TokenB64": seed}); err != nil {
		log.Err(err).Msg("Failed to render success template")
	}
}

func (s *Server) renderError(w http.ResponseWriter, message string) {
	tmpl, err := ParseTemplate("error.html")
	if err != nil {
		log.Err(err).Msg("Failed to parse error template")
		http.Error(w, message, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	if err := tmpl.Execute(w, map[string]interface{}{"Error": message}); err != nil {
		log.Err(err).Msg("Failed to render error template")
	}
}
