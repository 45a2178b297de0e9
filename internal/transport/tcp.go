package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"time"
)

var (
	// ErrWouldBlock reports that no data was available on a non-blocking read.
	ErrWouldBlock = errors.New("transport: read would block")

	// ErrClosed reports that the peer disconnected or the connection is gone.
	ErrClosed = errors.New("transport: connection closed")
)

// Conn is the duplex byte-stream channel the session loop drives. Reads are
// non-blocking; writes block until the full buffer is on the wire.
type Conn interface {
	// ReadNonblocking reads up to len(buf) bytes without waiting for data.
	// It returns ErrWouldBlock when nothing is available and ErrClosed when
	// the peer disconnected. A short read is not an error.
	ReadNonblocking(buf []byte) (int, error)

	// WriteAll writes the whole buffer, retrying partial writes. It returns
	// ErrClosed when the connection is gone.
	WriteAll(data []byte) error

	// Close tears down the connection.
	Close() error

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr
}

// TCPConn adapts a net.Conn to the Conn contract using read deadlines to
// emulate non-blocking mode.
type TCPConn struct {
	conn net.Conn

	// Statistics
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// Stats represents transport statistics for monitoring
type Stats struct {
	RemoteAddr   string `json:"remote_addr"`
	BytesRead    uint64 `json:"bytes_read"`
	BytesWritten uint64 `json:"bytes_written"`
}

// NewTCPConn wraps an established net.Conn.
func NewTCPConn(conn net.Conn) *TCPConn {
	return &TCPConn{conn: conn}
}

// readPollInterval bounds how long a "non-blocking" read can wait. An
// already-expired deadline would make Read fail before draining buffered
// data, so a short positive deadline is used instead.
const readPollInterval = 10 * time.Millisecond

// ReadNonblocking reads whatever is already buffered on the connection.
func (c *TCPConn) ReadNonblocking(buf []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
		return 0, fmt.Errorf("failed to set read deadline: %w", err)
	}

	n, err := c.conn.Read(buf)
	c.bytesRead.Add(uint64(n))
	if err == nil {
		return n, nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if n > 0 {
			return n, nil
		}
		return 0, ErrWouldBlock
	}
	if isClosed(err) {
		return n, ErrClosed
	}
	return n, fmt.Errorf("transport read: %w", err)
}

// WriteAll writes the whole buffer, looping on partial writes.
func (c *TCPConn) WriteAll(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Time{}); err != nil {
		return fmt.Errorf("failed to clear write deadline: %w", err)
	}

	for len(data) > 0 {
		n, err := c.conn.Write(data)
		c.bytesWritten.Add(uint64(n))
		if err != nil {
			if isClosed(err) {
				return ErrClosed
			}
			return fmt.Errorf("transport write: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// Close closes the underlying connection.
func (c *TCPConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *TCPConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Stats returns current transport statistics.
func (c *TCPConn) Stats() Stats {
	return Stats{
		RemoteAddr:   c.conn.RemoteAddr().String(),
		BytesRead:    c.bytesRead.Load(),
		BytesWritten: c.bytesWritten.Load(),
	}
}

// isClosed reports whether err means the connection is gone for good.
// Writes to a dead peer surface as EPIPE or ECONNRESET from the kernel
// rather than an EOF-style sentinel.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// Listen binds addr, accepts exactly one peer, and returns the adapted
// connection. The listener is closed once the peer is accepted or the
// context is cancelled.
func Listen(ctx context.Context, addr string) (*TCPConn, error) {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	defer listener.Close()

	// Unblock Accept on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-done:
		}
	}()

	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to accept peer on %s: %w", addr, err)
	}
	return NewTCPConn(conn), nil
}

// Dial connects to a listening peer at addr.
func Dial(ctx context.Context, addr string) (*TCPConn, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return NewTCPConn(conn), nil
}
