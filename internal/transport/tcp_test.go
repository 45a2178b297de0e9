package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"
)

// tcpPair returns two connected TCP adapters over the loopback interface.
func tcpPair(t *testing.T) (*TCPConn, *TCPConn) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		c, err := listener.Accept()
		accepted <- result{c, err}
	}()

	client, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}

	res := <-accepted
	if res.err != nil {
		client.Close()
		t.Fatalf("Failed to accept: %v", res.err)
	}

	a, b := NewTCPConn(res.conn), NewTCPConn(client)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestReadNonblockingWouldBlock(t *testing.T) {
	a, _ := tcpPair(t)

	start := time.Now()
	n, err := a.ReadNonblocking(make([]byte, 64))
	elapsed := time.Since(start)

	if !errors.Is(err, ErrWouldBlock) {
		t.Errorf("Expected ErrWouldBlock, got n=%d err=%v", n, err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Non-blocking read took %v", elapsed)
	}
}

func TestWriteAllThenRead(t *testing.T) {
	a, b := tcpPair(t)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := b.WriteAll(payload); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}

	// Loopback delivery is asynchronous; poll briefly.
	received := make([]byte, 0, len(payload))
	buf := make([]byte, 1024)
	deadline := time.Now().Add(2 * time.Second)
	for len(received) < len(payload) && time.Now().Before(deadline) {
		n, err := a.ReadNonblocking(buf)
		if err != nil && !errors.Is(err, ErrWouldBlock) {
			t.Fatalf("ReadNonblocking failed: %v", err)
		}
		received = append(received, buf[:n]...)
		if errors.Is(err, ErrWouldBlock) {
			time.Sleep(10 * time.Millisecond)
		}
	}

	if len(received) != len(payload) {
		t.Fatalf("Expected %d bytes, got %d", len(payload), len(received))
	}
	for i := range payload {
		if received[i] != payload[i] {
			t.Fatalf("Byte %d: expected %d, got %d", i, payload[i], received[i])
		}
	}

	stats := b.Stats()
	if stats.BytesWritten != uint64(len(payload)) {
		t.Errorf("Expected %d bytes written, got %d", len(payload), stats.BytesWritten)
	}
}

func TestReadAfterPeerClose(t *testing.T) {
	a, b := tcpPair(t)
	b.Close()

	// Drain until the close is observed.
	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := a.ReadNonblocking(buf)
		if errors.Is(err, ErrClosed) {
			return
		}
		if err != nil && !errors.Is(err, ErrWouldBlock) {
			t.Fatalf("Expected ErrClosed, got %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Never observed ErrClosed after peer close")
}

func TestWriteAfterPeerClose(t *testing.T) {
	a, b := tcpPair(t)
	b.Close()

	// The first writes may land in the kernel buffer; keep writing until the
	// reset surfaces.
	payload := make([]byte, 64*1024)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := a.WriteAll(payload); err != nil {
			if !errors.Is(err, ErrClosed) {
				t.Fatalf("Expected ErrClosed, got %v", err)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Never observed ErrClosed writing to closed peer")
}

func TestIsClosedClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		closed bool
	}{
		{name: "EOF", err: io.EOF, closed: true},
		{name: "use of closed connection", err: net.ErrClosed, closed: true},
		{name: "broken pipe", err: syscall.EPIPE, closed: true},
		{name: "connection reset", err: syscall.ECONNRESET, closed: true},
		{
			name: "wrapped reset from the kernel",
			err: &net.OpError{Op: "write", Net: "tcp",
				Err: &os.SyscallError{Syscall: "write", Err: syscall.ECONNRESET}},
			closed: true,
		},
		{name: "transient failure", err: errors.New("temporary glitch"), closed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isClosed(tt.err); got != tt.closed {
				t.Errorf("isClosed(%v) = %v, want %v", tt.err, got, tt.closed)
			}
		})
	}
}

func TestListenDial(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	type result struct {
		conn *TCPConn
		err  error
	}
	serverDone := make(chan result, 1)
	go func() {
		c, err := Listen(ctx, addr)
		serverDone <- result{c, err}
	}()

	// Give the listener a moment to bind before dialing.
	var client *TCPConn
	for i := 0; i < 50; i++ {
		client, err = Dial(ctx, addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	res := <-serverDone
	if res.err != nil {
		t.Fatalf("Listen failed: %v", res.err)
	}
	defer res.conn.Close()

	if err := client.WriteAll([]byte("hello")); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
}

func TestListenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Listen(ctx, "127.0.0.1:0")
	if err == nil {
		t.Fatal("Expected error from cancelled Listen")
	}
}
