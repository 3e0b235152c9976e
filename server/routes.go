package server

import (
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	RouteHealth      = "/health"
	RouteUnlock      = "/unlock"
	RouteGetToken    = "/get-token"
	RouteSetup       = "/setup"
	RouteSetupAuth   = "/setup/authenticate"
	RouteSetupVerify = "/setup/verify-2fa"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET /{$}", s.IndexHandler())
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// Setup flow (interactive, no API key: it is where credentials are entered)
	s.RegisterRouteFunc("GET "+RouteSetup, s.SetupPageHandler())
	s.RegisterRouteFunc("POST "+RouteSetupAuth, s.AuthenticateHandler())
	s.RegisterRouteFunc("POST "+RouteSetupVerify, s.VerifyTwoFactorHandler())

	// API routes (shared-secret protected)
	s.RegisterRouteHandler("GET "+RouteUnlock, ChainMiddleware(s.UnlockHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteUnlock, ChainMiddleware(s.UnlockHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteGetToken, ChainMiddleware(s.GetTokenHandler(), s.APIMiddleware()...))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Info().Str("method", parts[0]).Str("path", parts[1]).Msg("route registered")
		} else {
			log.Info().Str("path", parts[0]).Msg("route registered")
		}
	}
}
