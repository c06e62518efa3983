// Package pool implements the static worker pool from spec §4.6: a
// fixed-size set of workers loaned out one at a time via a bounded
// channel.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sadewadee/dispatchd/internal/ipc"
	"github.com/sadewadee/dispatchd/internal/linker"
	"github.com/sadewadee/dispatchd/internal/worker"
)

// ErrClosed is returned by Exec once the pool has been stopped.
var ErrClosed = errors.New("pool: closed")

// Config configures a static pool.
type Config struct {
	Socket      string // Unix-domain socket path for worker rendezvous
	Interpreter string // program invoked as `interpreter script socket`
	Script      string // script path passed to each spawned interpreter
	Size        int    // number of workers in the pool
}

// Pool owns a fixed-size set of Workers and serializes their use. At
// any instant #(workers in the channel) + #(workers checked out) ==
// Size.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	closeListener func() error
	available     chan *worker.Worker

	totalRequests atomic.Int64
	busyWorkers   atomic.Int32

	mu      sync.Mutex
	workers []*worker.Worker
	closed  bool
}

// New builds a Listener on cfg.Socket, a Linker over its output, and
// spawns cfg.Size workers concurrently. Pool exists only if every
// worker successfully handshook; otherwise New fails with the first
// spawn error (wrapped) and kills any workers that did start.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Size < 1 {
		return nil, fmt.Errorf("pool: size must be >= 1, got %d", cfg.Size)
	}

	conns, closeListener, err := ipc.Listen(cfg.Socket, logger)
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}

	l := linker.New(conns)

	type spawned struct {
		w   *worker.Worker
		err error
	}
	results := make([]spawned, cfg.Size)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Size; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := worker.New(ctx, cfg.Interpreter, cfg.Script, cfg.Socket, l)
			results[i] = spawned{w: w, err: err}
		}(i)
	}
	wg.Wait()

	workers := make([]*worker.Worker, 0, cfg.Size)
	var firstErr error
	for _, r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		workers = append(workers, r.w)
	}

	if firstErr != nil {
		for _, w := range workers {
			w.Close()
		}
		closeListener()
		return nil, fmt.Errorf("pool: starting workers: %w", firstErr)
	}

	available := make(chan *worker.Worker, cfg.Size)
	for _, w := range workers {
		available <- w
	}

	logger.Info("worker pool started", "size", cfg.Size, "socket", cfg.Socket)

	return &Pool{
		cfg:           cfg,
		logger:        logger,
		closeListener: closeListener,
		available:     available,
		workers:       workers,
	}, nil
}

// Exec dispatches payload to an available worker and returns its
// response. The dequeue is a tiny critical section handled by the
// channel receive itself; the round trip runs outside any lock so
// requests bound to different workers proceed in parallel up to Size.
//
// If the round trip fails the worker is still returned to the channel
// — a subsequent caller will observe the same failure on a genuinely
// dead worker. See SPEC_FULL.md's Open Question 3 for why this pool
// does not discard and replace dead workers.
func (p *Pool) Exec(payload []byte) ([]byte, error) {
	p.totalRequests.Add(1)

	w, ok := <-p.available
	if !ok {
		return nil, ErrClosed
	}
	// A closed channel still yields the workers buffered in it, and Stop
	// has already closed those.
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	p.busyWorkers.Add(1)
	resp, err := w.Exec(payload)
	p.busyWorkers.Add(-1)

	p.mu.Lock()
	if !p.closed {
		select {
		case p.available <- w:
		default:
			// Only reachable if the channel already holds Size workers
			// while this one is checked out, which the count invariant
			// rules out.
			p.logger.Error("pool: could not return worker to channel")
		}
	}
	p.mu.Unlock()

	return resp, err
}

// Stats reports current pool metrics.
type Stats struct {
	TotalWorkers  int
	BusyWorkers   int
	IdleWorkers   int
	TotalRequests int64
}

// Stats returns a snapshot of current pool metrics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	total := len(p.workers)
	p.mu.Unlock()

	busy := int(p.busyWorkers.Load())
	return Stats{
		TotalWorkers:  total,
		BusyWorkers:   busy,
		IdleWorkers:   total - busy,
		TotalRequests: p.totalRequests.Load(),
	}
}

// Stop closes the pool: no further Exec calls succeed, and every
// worker's child process is killed.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	workers := make([]*worker.Worker, len(p.workers))
	copy(workers, p.workers)
	close(p.available)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			if err := w.Close(); err != nil {
				p.logger.Warn("pool: error stopping worker", "pid", w.Pid(), "error", err)
			}
		}(w)
	}
	wg.Wait()

	return p.closeListener()
}
