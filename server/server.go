package server

import (
	"context"
	"net/http"

	"github.com/donmezahmet/ring-unlock/internal/config"
	"github.com/donmezahmet/ring-unlock/ring"
)

// Authenticator is the setup-flow surface of the session manager.
type Authenticator interface {
	BeginAuthentication(ctx context.Context, email, password string) (string, error)
	CompleteAuthentication(ctx context.Context, code string) error
	IsAuthenticated() bool
	CurrentSession() (*ring.Session, error)
}

// Unlocker performs the door-unlock operation.
type Unlocker interface {
	PerformUnlock(ctx context.Context) (*ring.Device, error)
}

type Server struct {
	env      string // Environment (e.g., "DEV", "production")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	auth     Authenticator
	unlocker Unlocker
}

func New(cfg config.Config, auth Authenticator, unlocker Unlocker) (*Server, error) {
	s := &Server{
		mux:      http.NewServeMux(),
		config:   cfg,
		auth:     auth,
		unlocker: unlocker,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}
