package ipc

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/sadewadee/dispatchd/internal/protocol"
)

// ErrProtocol is returned when a peer sends a message variant that is
// invalid for the connection's current state.
var ErrProtocol = errors.New("ipc: protocol violation")

type connState int32

const (
	stateIdle connState = iota
	stateAwaitingResponse
)

// Connection is the authenticated duplex byte stream between the
// dispatcher and a single worker, paired with the pid learned during
// the identity handshake. At most one RoundTrip may be in flight at a
// time; there is no internal mutex, so serializing callers is the
// caller's obligation (the pool provides this by owning the Worker
// exclusively while it is checked out).
type Connection struct {
	pid   uint64
	conn  net.Conn
	state atomic.Int32
}

func newConnection(pid uint64, conn net.Conn) *Connection {
	return &Connection{pid: pid, conn: conn}
}

// Pid returns the worker process id learned from the identity
// handshake.
func (c *Connection) Pid() uint64 {
	return c.pid
}

// Close closes the underlying stream.
func (c *Connection) Close() error {
	return c.conn.Close()
}

// RoundTrip writes a Request(payload) and waits for the matching
// Response(payload), failing with ErrProtocol if anything else arrives.
// Not re-entrant: transitions Idle -> AwaitingResponse -> Idle.
func (c *Connection) RoundTrip(payload []byte) ([]byte, error) {
	if !c.state.CompareAndSwap(int32(stateIdle), int32(stateAwaitingResponse)) {
		return nil, fmt.Errorf("%w: round trip already in flight on pid %d", ErrProtocol, c.pid)
	}
	defer c.state.Store(int32(stateIdle))

	if err := protocol.Write(c.conn, protocol.Request(payload)); err != nil {
		return nil, fmt.Errorf("sending request to pid %d: %w", c.pid, err)
	}

	msg, err := protocol.Read(c.conn)
	if err != nil {
		return nil, fmt.Errorf("reading response from pid %d: %w", c.pid, err)
	}
	if msg.Type != protocol.TypeResponse {
		return nil, fmt.Errorf("%w: expected response from pid %d, got type 0x%02x", ErrProtocol, c.pid, msg.Type)
	}
	return msg.Payload, nil
}
