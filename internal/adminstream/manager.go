// Package adminstream pushes periodic pool-statistics snapshots to
// connected dashboards over a WebSocket. There is nothing here for a
// worker to receive a message from and reply to, so this manager only
// ever broadcasts.
package adminstream

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sadewadee/dispatchd/internal/pool"
)

// StatsSource is the pool surface the manager needs: a periodic
// snapshot of operational counters.
type StatsSource interface {
	Stats() pool.Stats
}

// Snapshot is the msgpack-encoded payload pushed to every connected
// client on each tick.
type Snapshot struct {
	TotalWorkers  int   `msgpack:"total_workers"`
	BusyWorkers   int   `msgpack:"busy_workers"`
	IdleWorkers   int   `msgpack:"idle_workers"`
	TotalRequests int64 `msgpack:"total_requests"`
}

// client is a single connected dashboard.
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Manager tracks connected admin dashboards and broadcasts a Snapshot
// to all of them every PushInterval.
type Manager struct {
	stats    StatsSource
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// New creates a Manager that samples stats from source every interval.
func New(source StatsSource, interval time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		stats:    source,
		interval: interval,
		logger:   logger,
		clients:  make(map[string]*client),
	}
}

// Run broadcasts a snapshot every interval until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.broadcastSnapshot()
		}
	}
}

func (m *Manager) broadcastSnapshot() {
	s := m.stats.Stats()
	data, err := msgpack.Marshal(Snapshot{
		TotalWorkers:  s.TotalWorkers,
		BusyWorkers:   s.BusyWorkers,
		IdleWorkers:   s.IdleWorkers,
		TotalRequests: s.TotalRequests,
	})
	if err != nil {
		m.logger.Error("encoding admin snapshot", "error", err)
		return
	}

	m.mu.RLock()
	clients := make([]*client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(data); err != nil {
			m.logger.Warn("admin stream send failed", "conn_id", c.id, "error", err)
		}
	}
}

func (m *Manager) addClient(conn *websocket.Conn) *client {
	c := &client{id: generateConnID(), conn: conn}

	m.mu.Lock()
	m.clients[c.id] = c
	m.mu.Unlock()

	return c
}

func (m *Manager) removeClient(id string) {
	m.mu.Lock()
	delete(m.clients, id)
	m.mu.Unlock()
}

// Close disconnects every connected dashboard.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	clients := make([]*client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[string]*client)
	m.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func generateConnID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
