package linker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sadewadee/dispatchd/internal/ipc"
	"github.com/sadewadee/dispatchd/internal/protocol"
)

func TestGetResolvesEitherOrder(t *testing.T) {
	socket := socketPath(t)
	conns, closeFn, err := ipc.Listen(socket, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer closeFn()

	l := New(conns)

	clientOne, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientOne.Close()
	if err := protocol.Write(clientOne, protocol.Identity(42)); err != nil {
		t.Fatalf("write identity: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	connOne, err := l.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get(42): %v", err)
	}
	if connOne.Pid() != 42 {
		t.Errorf("pid = %d, want 42", connOne.Pid())
	}

	// get(43) is called before the connection for pid 43 exists.
	done := make(chan struct{})
	go func() {
		time.Sleep(2 * time.Millisecond)
		clientTwo, err := net.Dial("unix", socket)
		if err != nil {
			t.Errorf("dial: %v", err)
			return
		}
		defer clientTwo.Close()
		if err := protocol.Write(clientTwo, protocol.Identity(43)); err != nil {
			t.Errorf("write identity: %v", err)
		}
		<-done
	}()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	connTwo, err := l.Get(ctx2, 43)
	close(done)
	if err != nil {
		t.Fatalf("Get(43): %v", err)
	}
	if connTwo.Pid() != 43 {
		t.Errorf("pid = %d, want 43", connTwo.Pid())
	}
}

func TestGetTimesOutWithNoArrival(t *testing.T) {
	socket := socketPath(t)
	conns, closeFn, err := ipc.Listen(socket, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer closeFn()

	l := New(conns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.Get(ctx, 99)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func socketPath(t *testing.T) string {
	t.Helper()
	return t.TempDir() + "/linker.sock"
}
