package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/sadewadee/dispatchd/internal/protocol"
)

// HandshakeTimeout bounds how long a newly accepted connection has to
// send its Identity message before it is dropped.
const HandshakeTimeout = 100 * time.Millisecond

// acceptBacklog sizes the approximately-unbounded connection channel;
// see the Listen docstring.
const acceptBacklog = 4096

// Listen binds a Unix-domain socket at path and returns a channel of
// authenticated Connections. path is unlinked first if it already
// exists (ignoring not-found errors). A failure to remove that path or
// to bind is returned directly; these are the only errors this
// function produces.
//
// Accepted connections are handshaked in a background goroutine per
// connection: the first message must be Identity(pid), else the stream
// is logged and dropped. Go has no native unbounded channel, so the
// returned channel is given a generously sized buffer
// (acceptBacklog) to approximate one: it absorbs bursts of worker
// arrivals without making a handshake goroutine wait on a consumer
// that is momentarily behind. It is closed when the listener's accept
// loop exits (bind Close or fatal Accept error); it is never closed
// due to handshake failures on individual connections. Callers must
// drain the channel; if they stop permanently, the accept loop keeps
// running until the listener is closed but the per-connection
// goroutines will eventually block trying to send once the buffer
// fills — this mirrors spec §4.2's "consumer disappears" case, which
// assumes the caller closes the listener when it's done.
func Listen(path string, logger *slog.Logger) (<-chan *Connection, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, nil, fmt.Errorf("binding unix socket %s: %w", path, err)
	}

	out := make(chan *Connection, acceptBacklog)

	go acceptLoop(ln, out, logger)

	return out, ln.Close, nil
}

func acceptLoop(ln net.Listener, out chan<- *Connection, logger *slog.Logger) {
	defer close(out)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error("ipc: accept failed", "error", err)
			return
		}

		go handshake(conn, out, logger)
	}
}

func handshake(conn net.Conn, out chan<- *Connection, logger *slog.Logger) {
	conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))

	msg, err := protocol.Read(conn)
	if err != nil {
		logger.Warn("ipc: handshake read failed", "remote", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}
	if msg.Type != protocol.TypeIdentity {
		logger.Warn("ipc: handshake expected identity, dropping connection", "type", msg.Type)
		conn.Close()
		return
	}

	conn.SetReadDeadline(time.Time{})

	out <- newConnection(msg.Pid, conn)
}
