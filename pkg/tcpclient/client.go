package tcpclient

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MaxFrameSize bounds a single frame; a full batch of generated audio fits
// comfortably below it.
const MaxFrameSize = 1 << 30

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrTimeout          = errors.New("operation timed out")
	ErrFrameTooLarge    = errors.New("frame exceeds maximum size")
)

// TCPClient exchanges size-prefixed frames with a single peer over a small
// pool of connections. A frame is a 4-byte big-endian length followed by the
// payload.
type TCPClient struct {
	address     string
	dialTimeout time.Duration
	timeout     time.Duration
	maxRetries  int
	connections chan net.Conn
	logger      *zap.Logger
	mu          sync.Mutex
	closed      bool
}

type TCPClientOption func(*TCPClient)

func WithLogger(logger *zap.Logger) TCPClientOption {
	return func(c *TCPClient) {
		c.logger = logger
	}
}

// WithTimeout sets the I/O deadline of one round trip. Zero disables it.
func WithTimeout(timeout time.Duration) TCPClientOption {
	return func(c *TCPClient) {
		c.timeout = timeout
	}
}

// WithMaxRetries sets the number of attempts per round trip. The default is
// a single attempt.
func WithMaxRetries(n int) TCPClientOption {
	return func(c *TCPClient) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// NewTCPClient dials poolSize connections up front so an unreachable peer is
// reported before any request is built.
func NewTCPClient(ctx context.Context, address string, dialTimeout time.Duration, poolSize int, opts ...TCPClientOption) (*TCPClient, error) {
	if poolSize < 1 {
		poolSize = 1
	}

	client := &TCPClient{
		address:     address,
		dialTimeout: dialTimeout,
		maxRetries:  1,
		connections: make(chan net.Conn, poolSize),
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	for i := 0; i < poolSize; i++ {
		conn, err := client.dial(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to initialize connection pool: %w", err)
		}
		client.connections <- conn
	}

	return client, nil
}

func (c *TCPClient) Address() string {
	return c.address
}

func (c *TCPClient) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: c.dialTimeout}
	return dialer.DialContext(ctx, "tcp", c.address)
}

// getConnection takes a connection from the pool. A nil slot left behind by
// a discarded connection is redialed.
func (c *TCPClient) getConnection(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrConnectionClosed
	}

	var wait <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		wait = timer.C
	}

	select {
	case conn, ok := <-c.connections:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if conn != nil {
			return conn, nil
		}
		conn, err := c.dial(ctx)
		if err != nil {
			c.releaseConnection(nil)
			return nil, err
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wait:
		return nil, ErrTimeout
	}
}

// releaseConnection returns conn, or an empty slot when conn is nil, to the
// pool.
func (c *TCPClient) releaseConnection(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.connections <- conn
}

// discardConnection closes a connection whose stream state is unknown and
// frees its pool slot.
func (c *TCPClient) discardConnection(conn net.Conn) {
	if err := conn.Close(); err != nil {
		c.logger.Debug("Failed to close connection", zap.Error(err))
	}
	c.releaseConnection(nil)
}

// RoundTrip writes one request frame and reads one response frame on the
// same connection.
func (c *TCPClient) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	var (
		err      error
		response []byte
	)
	for i := 0; i < c.maxRetries; i++ {
		if response, err = c.roundTrip(ctx, payload); err == nil {
			return response, nil
		}
		if ctx.Err() != nil || errors.Is(err, ErrConnectionClosed) {
			break
		}
		if i+1 < c.maxRetries {
			c.logger.Warn("Round trip failed, retrying", zap.Error(err), zap.Int("attempt", i+1))
		}
	}
	return nil, err
}

func (c *TCPClient) roundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	conn, err := c.getConnection(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Time{}
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		c.discardConnection(conn)
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	// Unblock a pending read or write when the context is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	writer := bufio.NewWriter(conn)
	if err := WriteFrame(writer, payload); err != nil {
		c.discardConnection(conn)
		return nil, c.wrapIOError(ctx, "failed to send data", err)
	}
	if err := writer.Flush(); err != nil {
		c.discardConnection(conn)
		return nil, c.wrapIOError(ctx, "failed to flush data", err)
	}

	response, err := ReadFrame(conn)
	if err != nil {
		c.discardConnection(conn)
		return nil, c.wrapIOError(ctx, "failed to receive data", err)
	}

	c.releaseConnection(conn)
	return response, nil
}

func (c *TCPClient) wrapIOError(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", msg, ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", msg, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	close(c.connections)
	for conn := range c.connections {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil {
			c.logger.Error("Failed to close connection", zap.Error(err))
		}
	}

	return nil
}

func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(payload)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func ReadFrame(r io.Reader) ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(size[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
