package adminstream

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection as a dashboard that Run's ticks broadcast to. Manager
// implements http.Handler directly so it can be mounted at the admin
// path with no separate handler type.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		http.Error(w, "admin stream closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("admin stream upgrade failed", "error", err)
		return
	}

	c := m.addClient(conn)
	m.logger.Debug("admin stream connected", "conn_id", c.id)

	go m.readPump(c)
}

// readPump discards any inbound messages; a dashboard has nothing to
// say. Its only purpose is detecting the connection's close so the
// client can be deregistered.
func (m *Manager) readPump(c *client) {
	defer func() {
		m.removeClient(c.id)
		c.conn.Close()
		m.logger.Debug("admin stream disconnected", "conn_id", c.id)
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
