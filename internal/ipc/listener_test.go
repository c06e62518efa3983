package ipc

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sadewadee/dispatchd/internal/protocol"
)

func testSocket(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "dispatchd.sock")
}

func TestListenYieldsIdentifiedConnection(t *testing.T) {
	socket := testSocket(t)
	conns, closeFn, err := Listen(socket, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer closeFn()

	client, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := protocol.Write(client, protocol.Identity(42)); err != nil {
		t.Fatalf("write identity: %v", err)
	}

	select {
	case conn := <-conns:
		if conn.Pid() != 42 {
			t.Errorf("pid = %d, want 42", conn.Pid())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection")
	}
}

func TestListenDropsNonIdentityFirstMessage(t *testing.T) {
	socket := testSocket(t)
	conns, closeFn, err := Listen(socket, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer closeFn()

	client, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := protocol.Write(client, protocol.Request([]byte("not an identity"))); err != nil {
		t.Fatalf("write request: %v", err)
	}

	select {
	case conn := <-conns:
		t.Fatalf("expected no connection, got pid %d", conn.Pid())
	case <-time.After(50 * time.Millisecond):
		// expected: connection dropped, no delivery
	}
}

func TestRoundTrip(t *testing.T) {
	socket := testSocket(t)
	conns, closeFn, err := Listen(socket, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer closeFn()

	client, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := protocol.Write(client, protocol.Identity(7)); err != nil {
		t.Fatalf("write identity: %v", err)
	}

	var conn *Connection
	select {
	case conn = <-conns:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection")
	}

	errCh := make(chan error, 1)
	go func() {
		req, err := protocol.Read(client)
		if err != nil {
			errCh <- err
			return
		}
		if req.Type != protocol.TypeRequest {
			errCh <- err
			return
		}
		errCh <- protocol.Write(client, protocol.Response([]byte("hello world res")))
	}()

	resp, err := conn.RoundTrip([]byte("hello world req"))
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if string(resp) != "hello world res" {
		t.Errorf("resp = %q, want %q", resp, "hello world res")
	}
	if err := <-errCh; err != nil {
		t.Fatalf("worker side: %v", err)
	}
}
