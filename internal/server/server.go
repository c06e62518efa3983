package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sadewadee/dispatchd/internal/config"
)

// Server is the dispatcher's HTTP front end. It depends on Pool and
// StatsProvider only, never on the concrete static pool, so a future
// dynamic pool implementation can be swapped in without touching it.
// The transport itself is a plain http.Server: the spec places the
// front end out of scope as "any router that can invoke a single
// exec(payload) -> payload operation", so it carries no TLS, HTTP/2,
// or HTTP/3 machinery beyond what net/http already provides.
type Server struct {
	cfg     *config.Config
	pool    Pool
	logger  *slog.Logger
	http    *http.Server
	router  *Router
	metrics *Metrics
}

// New creates a new dispatcher server.
func New(cfg *config.Config, workerPool WorkerPool, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		pool:   workerPool,
		logger: logger,
	}

	s.metrics = NewMetrics(workerPool)
	s.router = NewRouter(cfg, workerPool, workerPool, logger)

	s.http = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.buildMiddleware(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handle mounts an additional handler, such as the admin stats stream,
// at the given path.
func (s *Server) Handle(path string, handler http.Handler) {
	s.router.Handle(path, handler)
}

// Start begins listening for HTTP connections.
func (s *Server) Start() error {
	s.logger.Info("dispatchd server starting", "address", s.cfg.Server.Address)
	return s.http.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("dispatchd server shutting down")
	return s.http.Shutdown(ctx)
}

func (s *Server) buildMiddleware(handler http.Handler) http.Handler {
	handler = CoreMiddleware(s.logger)(handler)

	if s.cfg.Metrics.Enabled {
		handler = s.metrics.Middleware(s.cfg.Metrics.Path)(handler)
	}

	return handler
}
