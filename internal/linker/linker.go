// Package linker solves the rendezvous problem described in spec §4.4:
// the dispatcher spawns a worker and learns its OS pid synchronously,
// but the worker's socket connection arrives asynchronously, possibly
// before or after the dispatcher starts waiting for it.
package linker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sadewadee/dispatchd/internal/ipc"
)

// ErrClosed is returned by Get when the underlying connection stream
// has ended (the listener's accept loop exited) while a caller was
// still waiting.
var ErrClosed = errors.New("linker: closed")

// Linker matches connections arriving from a Listener to callers
// asking for a specific pid. A pid appears in at most one of the
// queue or the waiters map at any instant; both are guarded by a
// single mutex so the "scan queue, else install waiter" decision is
// atomic with respect to "match waiter, else enqueue" on arrival.
type Linker struct {
	mu      sync.Mutex
	queue   []*ipc.Connection
	waiters map[uint64]chan *ipc.Connection
}

// New creates a Linker and starts a background goroutine that consumes
// conns, matching each arrival against pending waiters or queuing it
// for a future Get. The Linker stops accepting new arrivals once conns
// is closed, at which point any still-pending waiters are unblocked
// with ErrClosed.
func New(conns <-chan *ipc.Connection) *Linker {
	l := &Linker{
		waiters: make(map[uint64]chan *ipc.Connection),
	}
	go l.drain(conns)
	return l
}

func (l *Linker) drain(conns <-chan *ipc.Connection) {
	for conn := range conns {
		l.mu.Lock()
		if waiter, ok := l.waiters[conn.Pid()]; ok {
			delete(l.waiters, conn.Pid())
			l.mu.Unlock()
			waiter <- conn
			close(waiter)
			continue
		}
		l.queue = append(l.queue, conn)
		l.mu.Unlock()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for pid, waiter := range l.waiters {
		close(waiter)
		delete(l.waiters, pid)
	}
}

// Get returns the Connection whose identity handshake reported pid,
// waiting for it to arrive if necessary. If two callers ask for the
// same pid, the second installs a waiter that only the next identity
// with that pid will resolve — a caller error, not a linker concern.
func (l *Linker) Get(ctx context.Context, pid uint64) (*ipc.Connection, error) {
	l.mu.Lock()
	for i, conn := range l.queue {
		if conn.Pid() == pid {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			l.mu.Unlock()
			return conn, nil
		}
	}

	waiter := make(chan *ipc.Connection, 1)
	l.waiters[pid] = waiter
	l.mu.Unlock()

	select {
	case conn, ok := <-waiter:
		if !ok {
			return nil, fmt.Errorf("%w: waiting for pid %d", ErrClosed, pid)
		}
		return conn, nil
	case <-ctx.Done():
		l.mu.Lock()
		if l.waiters[pid] == waiter {
			delete(l.waiters, pid)
		}
		l.mu.Unlock()
		return nil, ctx.Err()
	}
}
