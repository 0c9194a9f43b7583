package mlruntime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cozy-creator/audio-adapters/pkg/tcpclient"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

var ErrRemote = errors.New("runtime error")

// RemoteError is an error reported by the runtime itself, as opposed to a
// transport failure.
type RemoteError struct {
	Command Command
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("runtime %s failed: %s", e.Command, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}

type Options struct {
	DialTimeout time.Duration
	// Timeout bounds one call. Zero waits until the runtime answers.
	Timeout time.Duration
	// MaxRetries is the number of attempts per call after a broken
	// connection. Zero means one attempt.
	MaxRetries int
	Logger     *zap.Logger
}

// Client talks to the model runtime. One client is one session; handles
// loaded through it belong to that session.
type Client struct {
	tcp     *tcpclient.TCPClient
	session string
	logger  *zap.Logger
}

func Dial(ctx context.Context, address string, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tcp, err := tcpclient.NewTCPClient(ctx, address, opts.DialTimeout, 1,
		tcpclient.WithLogger(logger),
		tcpclient.WithTimeout(opts.Timeout),
		tcpclient.WithMaxRetries(opts.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to runtime at %s: %w", address, err)
	}

	session := uuid.NewString()
	logger.Debug("Connected to runtime", zap.String("address", address), zap.String("session", session))

	return &Client{
		tcp:     tcp,
		session: session,
		logger:  logger,
	}, nil
}

func (c *Client) Session() string {
	return c.session
}

func (c *Client) call(ctx context.Context, req *Request) (*Response, error) {
	req.Session = c.session

	payload, err := msgpack.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", req.Command, err)
	}

	started := time.Now()
	data, err := c.tcp.RoundTrip(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("runtime %s: %w", req.Command, err)
	}

	var resp Response
	if err := msgpack.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", req.Command, err)
	}

	c.logger.Debug("Runtime call finished",
		zap.String("command", string(req.Command)),
		zap.String("status", resp.Status),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.Status != StatusOK {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %q", resp.Status)
		}
		return nil, &RemoteError{Command: req.Command, Message: msg}
	}

	return &resp, nil
}

func (c *Client) Probe(ctx context.Context) (*ProbeResult, error) {
	resp, err := c.call(ctx, &Request{Command: CommandProbe})
	if err != nil {
		return nil, err
	}
	if resp.Probe == nil {
		return nil, &RemoteError{Command: CommandProbe, Message: "empty probe result"}
	}
	return resp.Probe, nil
}

// Load places a model in the runtime. The returned handle must be unloaded
// by the caller.
func (c *Client) Load(ctx context.Context, load LoadRequest) (*Handle, error) {
	id := uuid.NewString()
	resp, err := c.call(ctx, &Request{Command: CommandLoad, Handle: id, Load: &load})
	if err != nil {
		return nil, err
	}

	info := HandleInfo{
		ID:            id,
		Device:        load.Device,
		Quantization:  load.Quantization,
		HalfPrecision: load.HalfPrecision,
	}
	// The runtime may report a different placement than requested.
	if resp.Handle != nil {
		if resp.Handle.ID != "" {
			info.ID = resp.Handle.ID
		}
		if resp.Handle.Device != "" {
			info.Device = resp.Handle.Device
		}
		if resp.Handle.Quantization != "" {
			info.Quantization = resp.Handle.Quantization
		}
		info.HalfPrecision = resp.Handle.HalfPrecision
	}

	c.logger.Info("Model loaded",
		zap.String("model", load.Model),
		zap.String("handle", info.ID),
		zap.String("device", info.Device),
		zap.String("quantization", info.Quantization),
		zap.Bool("half_precision", info.HalfPrecision),
	)

	return &Handle{Info: info, Kind: load.Kind, client: c}, nil
}

func (c *Client) Close() error {
	return c.tcp.Close()
}
