package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/pkg/buffer"
	"github.com/skshohagmiah/sockit/pkg/protocol"
	"github.com/skshohagmiah/sockit/pkg/transport"
)

var (
	ErrKeyNotFound        = errors.New("key not found")
	ErrClosed             = errors.New("client closed")
	ErrDisconnected       = errors.New("connection lost before the reply")
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// Config describes the server to talk to.
type Config struct {
	Address        string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig talks to addr with a 5s dial and request timeout.
func DefaultConfig(addr string) Config {
	return Config{
		Address:        addr,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

type result struct {
	resp *protocol.Response
	err  error
}

// TCPClient issues one request at a time and waits for its reply. A broken
// connection is redialed once per request.
type TCPClient struct {
	cfg Config
	tc  *transport.Client
	log *zap.Logger

	mu      sync.Mutex
	framer  protocol.Framer
	replies chan result
}

// NewTCP connects to cfg.Address.
func NewTCP(ctx context.Context, cfg Config, logger *zap.Logger, opts ...transport.Option) (*TCPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tcfg := transport.DefaultClientConfig(cfg.Address)
	tcfg.DialTimeout = cfg.DialTimeout
	// the request timeout bounds idle reads instead
	tcfg.Timeout = 0

	tc, err := transport.NewClient(tcfg, append([]transport.Option{transport.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	c := &TCPClient{
		cfg:     cfg,
		tc:      tc,
		log:     logger.Named("client"),
		replies: make(chan result, 1),
	}
	tc.OnReceived(c.received)
	tc.OnDisconnected(func(*transport.Conn) { c.framer.Reset() })

	if err := tc.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return c, nil
}

func (c *TCPClient) received(_ *transport.Conn, b *buffer.Buffer) {
	c.framer.Push(b.Data())
	for {
		frame, err := c.framer.Next()
		if err == nil && frame == nil {
			return
		}
		var r result
		if err != nil {
			r.err = err
		} else {
			r.resp, r.err = protocol.DecodeResponse(frame)
		}
		select {
		case c.replies <- r:
		default:
			c.log.Warn("dropping reply with no pending request")
		}
		if err != nil {
			return
		}
	}
}

// conn returns a live connection, dialing a new one when needed.
func (c *TCPClient) conn(ctx context.Context) (*transport.Conn, error) {
	if conn := c.tc.Conn(); conn != nil && conn.IsConnected() {
		return conn, nil
	}
	if err := c.tc.Reconnect(ctx); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	conn := c.tc.Conn()
	if conn == nil {
		return nil, ErrDisconnected
	}
	return conn, nil
}

// do sends req and waits for its reply. When the connection breaks before
// a reply arrives the request is sent once more on a fresh connection.
func (c *TCPClient) do(ctx context.Context, req *buffer.Buffer, encErr error) (*protocol.Response, error) {
	if encErr != nil {
		return nil, encErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.roundTrip(ctx, req)
		if attempt == 0 && errors.Is(err, ErrDisconnected) {
			c.log.Debug("connection lost, retrying request")
			continue
		}
		return resp, err
	}
}

func (c *TCPClient) roundTrip(ctx context.Context, req *buffer.Buffer) (*protocol.Response, error) {
	// a late reply to an abandoned request must not answer this one
	select {
	case <-c.replies:
	default:
	}

	conn, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Send(req); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	select {
	case r := <-c.replies:
		return r.unwrap()
	case <-conn.Done():
		select {
		case r := <-c.replies:
			return r.unwrap()
		default:
		}
		return nil, ErrDisconnected
	case <-ctx.Done():
		// the stream is out of step now, start over on the next request
		_ = conn.Close()
		return nil, ctx.Err()
	}
}

func (r result) unwrap() (*protocol.Response, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.resp, r.resp.Err()
}

func unexpected(resp *protocol.Response) error {
	return fmt.Errorf("%w: status 0x%02x", ErrUnexpectedResponse, uint8(resp.Status))
}

func (c *TCPClient) expectOK(resp *protocol.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusOK {
		return unexpected(resp)
	}
	return nil
}

func (c *TCPClient) expectInt(resp *protocol.Response, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	if resp.Status != protocol.StatusInt {
		return 0, unexpected(resp)
	}
	return resp.Int, nil
}

// Set stores value under key with no expiry.
func (c *TCPClient) Set(ctx context.Context, key string, value []byte) error {
	return c.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores value under key, expiring after ttl.
func (c *TCPClient) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	req, err := protocol.EncodeSetRequest(key, value, ttl)
	return c.expectOK(c.do(ctx, req, err))
}

// Get returns the value under key or ErrKeyNotFound.
func (c *TCPClient) Get(ctx context.Context, key string) ([]byte, error) {
	req, err := protocol.EncodeGetRequest(key)
	resp, err := c.do(ctx, req, err)
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case protocol.StatusValue:
		return resp.Value, nil
	case protocol.StatusNotFound:
		return nil, ErrKeyNotFound
	}
	return nil, unexpected(resp)
}

// Delete removes key.
func (c *TCPClient) Delete(ctx context.Context, key string) error {
	req, err := protocol.EncodeDeleteRequest(key)
	return c.expectOK(c.do(ctx, req, err))
}

// Exists reports whether key is set.
func (c *TCPClient) Exists(ctx context.Context, key string) (bool, error) {
	req, err := protocol.EncodeExistsRequest(key)
	n, err := c.expectInt(c.do(ctx, req, err))
	return n == 1, err
}

// Incr adds one to the counter under key and returns the new value.
func (c *TCPClient) Incr(ctx context.Context, key string) (int64, error) {
	req, err := protocol.EncodeIncrRequest(key)
	return c.expectInt(c.do(ctx, req, err))
}

// Decr subtracts one from the counter under key and returns the new value.
func (c *TCPClient) Decr(ctx context.Context, key string) (int64, error) {
	req, err := protocol.EncodeDecrRequest(key)
	return c.expectInt(c.do(ctx, req, err))
}

// MSet stores every pair in one request.
func (c *TCPClient) MSet(ctx context.Context, keys []string, values [][]byte) error {
	req, err := protocol.EncodeMSetRequest(keys, values)
	return c.expectOK(c.do(ctx, req, err))
}

// MGet returns one value per key, nil where the key is missing.
func (c *TCPClient) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	req, err := protocol.EncodeMGetRequest(keys)
	resp, err := c.do(ctx, req, err)
	if err != nil {
		return nil, err
	}
	if resp.Status != protocol.StatusMulti || len(resp.Values) != len(keys) {
		return nil, unexpected(resp)
	}
	return resp.Values, nil
}

// MDelete removes every key and returns how many were requested.
func (c *TCPClient) MDelete(ctx context.Context, keys []string) (int64, error) {
	req, err := protocol.EncodeMDeleteRequest(keys)
	return c.expectInt(c.do(ctx, req, err))
}

// Close drops the connection. Further requests fail with ErrClosed.
func (c *TCPClient) Close() error {
	return c.tc.Close()
}
