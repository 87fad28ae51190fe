// Package server is the HTTP surface: the public coming-soon page and
// subscribe endpoint, and the signed-in admin dashboard with its live feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"comingsoon/internal/feed"
	"comingsoon/internal/identity"
	"comingsoon/internal/model"
)

const sessionCookie = "admin_session"

// Gate signs admins in and out.
type Gate interface {
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	CurrentUser(ctx context.Context, token string) (*model.UserIdentity, error)
	SignOut(ctx context.Context, token string) error
}

// Feed opens live visitor feed subscriptions.
type Feed interface {
	Source() feed.Source
	Subscribe(ctx context.Context) (*feed.Subscription, error)
}

// Documents looks up single subscriber documents.
type Documents interface {
	GetDocument(ctx context.Context, id string) (*model.Document, error)
}

// Metrics records request and sign-in activity and exposes the registry.
type Metrics interface {
	Handler() http.Handler
	SignIn(ok bool)
	ObserveRequest(route string, code int, d time.Duration)
}

// Config holds the HTTP settings of the server.
type Config struct {
	Addr          string
	SecureCookies bool
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Intake    http.Handler
	Gate      Gate
	Feed      Feed
	Documents Documents
	Metrics   Metrics
	Log       *slog.Logger
}

// Server serves every HTTP route of the service.
type Server struct {
	cfg      Config
	intake   http.Handler
	gate     Gate
	feed     Feed
	docs     Documents
	metrics  Metrics
	log      *slog.Logger
	pages    *pages
	upgrader websocket.Upgrader
	router   *mux.Router
	handler  http.Handler
}

// New creates a Server and registers its routes.
func New(cfg Config, deps Deps) (*Server, error) {
	p, err := loadPages()
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		intake:  deps.Intake,
		gate:    deps.Gate,
		feed:    deps.Feed,
		docs:    deps.Documents,
		metrics: deps.Metrics,
		log:     deps.Log,
		pages:   p,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		router: mux.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.logRequests)

	r.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	r.Handle("/subscribe", s.intake).Methods(http.MethodPost)
	r.Handle("/api/subscribe", s.intake).Methods(http.MethodPost)

	r.HandleFunc("/admin", s.handleAdmin).Methods(http.MethodGet)
	r.HandleFunc("/admin/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/admin/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/admin/visitors/{id}", s.requireAdmin(redirectToLogin, s.handleDetail)).Methods(http.MethodGet)
	r.HandleFunc("/admin/feed", s.requireAdmin(unauthorizedJSON, s.handleFeed)).Methods(http.MethodGet)
	r.HandleFunc("/admin/feed.atom", s.requireAdmin(unauthorizedJSON, s.handleAtom)).Methods(http.MethodGet)
	r.HandleFunc("/admin/api/visitors", s.requireAdmin(unauthorizedJSON, s.handleVisitorsJSON)).Methods(http.MethodGet)
	r.HandleFunc("/admin/api/visitors/{id}", s.requireAdmin(unauthorizedJSON, s.handleDetailJSON)).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	// Headers and request IDs also cover unmatched routes.
	s.handler = securityHeaders(requestID(r))
}

// Handler returns the root handler with every route and middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.feed.Source().Revision(r.Context()); err != nil {
		s.log.Error("health check", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
