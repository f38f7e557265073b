package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/fixrouter/internal/connection"
	"github.com/rickgao/fixrouter/internal/registry"
	"github.com/rickgao/fixrouter/internal/version"
)

// Config holds configuration for the monitor server.
type Config struct {
	Addr        string // Default: ":9090"
	MetricsPath string // Default: "/metrics"
	InstanceID  string
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the monitor HTTP server.
type Server struct {
	cfg     Config
	reg     *registry.Registry
	hub     *Hub
	db      Pinger
	logger  *slog.Logger
	started time.Time

	srv *http.Server
	ln  net.Listener
	err chan error
}

// NewServer creates a Server. gatherer may be nil to omit the metrics
// endpoint.
func NewServer(cfg Config, reg *registry.Registry, gatherer prometheus.Gatherer, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		cfg:     cfg,
		reg:     reg,
		hub:     hub,
		logger:  logger.With("component", "monitor"),
		started: time.Now(),
		err:     make(chan error, 1),
	}
	s.srv = &http.Server{
		Handler:           s.routes(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetDatabase adds the journal database to the health check.
func (s *Server) SetDatabase(db Pinger) {
	s.db = db
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) routes(gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(requestLogging(s.logger))
		r.Get("/health", s.health)
		r.Get("/debug/routes", s.routesSnapshot)
	})

	if gatherer != nil {
		r.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	if s.hub != nil {
		r.Get("/ws/events", s.hub.ServeHTTP)
	}
	return r
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen monitor %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitor server failed", "error", err)
			s.err <- err
		}
		close(s.err)
	}()

	s.logger.Info("monitor server started", "addr", ln.Addr().String(), "metrics_path", s.cfg.MetricsPath)
	return nil
}

// Wait blocks until the server stops and returns its serve error, if any.
func (s *Server) Wait() error {
	return <-s.err
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop gracefully shuts the server down and disconnects event subscribers.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping monitor server")
	if s.hub != nil {
		s.hub.Close()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown monitor: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status   string       `json:"status"`
	Instance string       `json:"instance,omitempty"`
	Version  version.Info `json:"version"`
	Uptime   string       `json:"uptime"`
	Brokers  int          `json:"brokers"`
	Markets  int          `json:"markets"`
	Pending  int          `json:"pending"`
	Watchers int          `json:"watchers"`
	Journal  string       `json:"journal,omitempty"`
	JournalError string `json:"journal_error,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Instance: s.cfg.InstanceID,
		Version:  version.Get(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Brokers:  s.reg.Count(connection.RoleBroker),
		Markets:  s.reg.Count(connection.RoleMarket),
		Pending:  s.reg.PendingTotal(),
	}
	if s.hub != nil {
		resp.Watchers = s.hub.Len()
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp.Journal = "ok"
		if err := s.db.Ping(ctx); err != nil {
			// Routing does not depend on the journal.
			resp.Status = "degraded"
			resp.Journal = "error"
			resp.JournalError = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) routesSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// requestLogging logs each request's method, path, status and duration.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
