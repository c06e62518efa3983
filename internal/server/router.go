package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sadewadee/dispatchd/internal/config"
)

// Router dispatches incoming HTTP requests to the dispatcher's single
// exposed route plus the operational surfaces (health, metrics, admin).
type Router struct {
	cfg           *config.Config
	pool          Pool
	logger        *slog.Logger
	healthHandler *HealthHandler

	extraPath    string
	extraHandler http.Handler
}

// NewRouter creates a new request router.
func NewRouter(cfg *config.Config, workerPool Pool, statsPool StatsProvider, logger *slog.Logger) *Router {
	return &Router{
		cfg:           cfg,
		pool:          workerPool,
		logger:        logger,
		healthHandler: NewHealthHandler(statsPool),
	}
}

// Handle mounts an additional handler at path, alongside the fixed
// /hello and health routes. Used for the optional admin stats stream.
func (r *Router) Handle(path string, handler http.Handler) {
	r.extraPath = path
	r.extraHandler = handler
}

// helloPayload is the small JSON payload forwarded to a worker for the
// single exposed route, per the worker startup contract.
type helloPayload struct {
	Name string `json:"name"`
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/health", "/healthz", "/ready", "/readyz":
		r.healthHandler.ServeHTTP(w, req)
		return
	}

	if r.extraHandler != nil && req.URL.Path == r.extraPath {
		r.extraHandler.ServeHTTP(w, req)
		return
	}

	if req.Method == http.MethodGet && strings.HasPrefix(req.URL.Path, "/hello/") {
		r.handleHello(w, req)
		return
	}

	http.NotFound(w, req)
}

func (r *Router) handleHello(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimPrefix(req.URL.Path, "/hello/")
	if name == "" {
		http.NotFound(w, req)
		return
	}

	payload, err := json.Marshal(helloPayload{Name: name})
	if err != nil {
		r.logger.Error("encoding hello payload", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp, err := r.pool.Exec(payload)
	if err != nil {
		r.logger.Error("worker exec", "error", err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	w.Write(resp)
}
