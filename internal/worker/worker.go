// Package worker spawns a single interpreter subprocess and rendezvous-
// links it to the Connection it opens back to the dispatcher.
package worker

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/sadewadee/dispatchd/internal/ipc"
	"github.com/sadewadee/dispatchd/internal/linker"
)

// RendezvousTimeout bounds how long Worker.New waits for the spawned
// child's socket connection to be handed back by the Linker.
const RendezvousTimeout = 2 * time.Second

// Worker is a handle to a spawned child process plus the Connection
// that child established. worker.pid always equals connection.Pid():
// the child the dispatcher spawned is the one whose socket it uses.
type Worker struct {
	cmd  *exec.Cmd
	pid  uint64
	conn *ipc.Connection
	stop context.CancelFunc
}

// New spawns `interpreter script socket` with kill-on-context-cancel
// semantics, reads the child's OS pid, and rendezvous-links it via the
// Linker within RendezvousTimeout. On any failure the child is killed.
func New(ctx context.Context, interpreter, script, socket string, l *linker.Linker) (*Worker, error) {
	spawnCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(spawnCtx, interpreter, script, socket)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("spawning worker %s %s: %w", interpreter, script, err)
	}

	pid := uint64(cmd.Process.Pid)

	rendezvousCtx, rendezvousCancel := context.WithTimeout(ctx, RendezvousTimeout)
	defer rendezvousCancel()

	conn, err := l.Get(rendezvousCtx, pid)
	if err != nil {
		cancel() // kill the child; it never completed its handshake
		return nil, fmt.Errorf("rendezvous with worker pid %d: %w", pid, err)
	}

	return &Worker{cmd: cmd, pid: pid, conn: conn, stop: cancel}, nil
}

// Pid returns the OS process id of the spawned worker.
func (w *Worker) Pid() uint64 {
	return w.pid
}

// Exec delegates to the worker's Connection.RoundTrip.
func (w *Worker) Exec(payload []byte) ([]byte, error) {
	return w.conn.RoundTrip(payload)
}

// Close terminates the child process and closes its connection.
func (w *Worker) Close() error {
	w.stop()
	return w.conn.Close()
}
