package pool

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sadewadee/dispatchd/internal/protocol"
)

// TestMain re-execs this test binary as an echo/sleepy-pid worker when
// GO_WANT_HELPER_PROCESS is set, the same technique used in
// internal/worker's tests.
func TestMain(m *testing.M) {
	switch os.Getenv("GO_WANT_HELPER_PROCESS") {
	case "echo":
		runHelper(echoOnce)
		os.Exit(0)
	case "pid":
		runHelper(pidOnce)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runHelper(handle func(req []byte) []byte) {
	socket := os.Args[len(os.Args)-1]
	conn, err := net.Dial("unix", socket)
	if err != nil {
		os.Exit(1)
	}
	defer conn.Close()

	if err := protocol.Write(conn, protocol.Identity(uint64(os.Getpid()))); err != nil {
		os.Exit(1)
	}

	for {
		msg, err := protocol.Read(conn)
		if err != nil {
			return
		}
		if msg.Type != protocol.TypeRequest {
			return
		}
		if err := protocol.Write(conn, protocol.Response(handle(msg.Payload))); err != nil {
			return
		}
	}
}

func echoOnce(req []byte) []byte { return req }

func pidOnce(req []byte) []byte {
	time.Sleep(20 * time.Millisecond)
	return []byte(fmt.Sprintf("%d", os.Getpid()))
}

func testCfg(t *testing.T, mode string, size int) Config {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	os.Setenv("GO_WANT_HELPER_PROCESS", mode)
	t.Cleanup(func() { os.Unsetenv("GO_WANT_HELPER_PROCESS") })

	return Config{
		Socket:      t.TempDir() + "/pool.sock",
		Interpreter: exe,
		Script:      "-helper",
		Size:        size,
	}
}

func TestPoolExecEcho(t *testing.T) {
	cfg := testCfg(t, "echo", 1)

	p, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Stop()

	resp, err := p.Exec([]byte(`{"name":"world"}`))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if string(resp) != `{"name":"world"}` {
		t.Errorf("resp = %q", resp)
	}
}

func TestPoolConcurrentExecDistinctWorkers(t *testing.T) {
	cfg := testCfg(t, "pid", 2)

	p, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Stop()

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := p.Exec([]byte("req"))
			if err != nil {
				t.Errorf("Exec: %v", err)
				return
			}
			results[i] = resp
		}(i)
	}
	wg.Wait()

	if string(results[0]) == string(results[1]) {
		t.Errorf("expected distinct worker pids, both responded %q", results[0])
	}
}

func TestPoolPreservesWorkerCount(t *testing.T) {
	cfg := testCfg(t, "echo", 3)

	p, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Stop()

	for i := 0; i < 10; i++ {
		if _, err := p.Exec([]byte("ping")); err != nil {
			t.Fatalf("Exec: %v", err)
		}
	}

	stats := p.Stats()
	if stats.TotalWorkers != 3 {
		t.Errorf("TotalWorkers = %d, want 3", stats.TotalWorkers)
	}
	if stats.IdleWorkers != 3 {
		t.Errorf("IdleWorkers = %d, want 3", stats.IdleWorkers)
	}
	if stats.TotalRequests != 10 {
		t.Errorf("TotalRequests = %d, want 10", stats.TotalRequests)
	}
}

func TestPoolExecAfterStopFails(t *testing.T) {
	cfg := testCfg(t, "echo", 1)

	p, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, err := p.Exec([]byte("x")); err == nil {
		t.Fatal("expected ErrClosed")
	}
}
