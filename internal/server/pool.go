package server

import "github.com/sadewadee/dispatchd/internal/pool"

// Pool is the interface the HTTP front-end depends on: a single
// exec(bytes) -> bytes operation, so a future dynamic or elastic pool
// can stand in for the static one without touching the router.
type Pool interface {
	Exec(payload []byte) ([]byte, error)
}

// StatsProvider is implemented by pool backends that expose operational
// metrics for the health and metrics surfaces.
type StatsProvider interface {
	Stats() pool.Stats
}

// WorkerPool is the full surface the server needs from a pool backend:
// request dispatch plus the stats it reports to /ready, /readyz and
// /metrics.
type WorkerPool interface {
	Pool
	StatsProvider
}
