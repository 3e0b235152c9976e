package server

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (s *Server) APIMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.RequireAPIKey,
	}
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Info().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next(w, r)
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("handler panic recovered")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// RequireAPIKey guards an endpoint with the deployment's shared secret,
// provided either as an X-API-Key header or an api_key query parameter. The
// secret is configured as plaintext (API_KEY) or as a bcrypt hash
// (API_KEY_HASH); the hash wins when both are set.
func (s *Server) RequireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get("X-API-Key")
		if provided == "" {
			provided = r.URL.Query().Get("api_key")
		}

		keyHash := s.config.GetAPIKeyHash()
		key := s.config.GetAPIKey()
		if keyHash == "" && key == "" {
			writeJSONError(w, http.StatusInternalServerError, "Server not configured - API_KEY not set")
			return
		}

		var authorized bool
		if keyHash != "" {
			authorized = bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(provided)) == nil
		} else {
			authorized = provided != "" && provided == key
		}

		if !authorized {
			writeJSONError(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}
		next(w, r)
	}
}
