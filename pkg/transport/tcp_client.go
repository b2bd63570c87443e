package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/pkg/buffer"
	"github.com/skshohagmiah/sockit/pkg/socket"
)

// ClientConfig describes the remote endpoint of an outbound connection.
type ClientConfig struct {
	Address string

	DialTimeout time.Duration

	// Timeout is the idle check interval of the read loop. Zero disables
	// the check.
	Timeout time.Duration

	ReadBufferSize int
}

// DefaultClientConfig dials address with a 5s dial timeout.
func DefaultClientConfig(address string) ClientConfig {
	return ClientConfig{
		Address:        address,
		DialTimeout:    5 * time.Second,
		Timeout:        30 * time.Second,
		ReadBufferSize: defaultReadBufferSize,
	}
}

// Client owns one outbound TCP connection and runs the same read loop as
// connections accepted by a TCPServer. It never reconnects on its own.
type Client struct {
	cfg  ClientConfig
	opts *options

	mu     sync.Mutex
	conn   *Conn
	closed bool

	onConnected        observers[func(*Client, *Conn)]
	onReceived         observers[func(*Conn, *buffer.Buffer)]
	onAttemptReconnect observers[func(*Conn)]
	onDisconnected     observers[func(*Conn)]
	onClosed           observers[func(*Client)]
}

// NewClient prepares a client. Nothing is dialed until Connect.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	if cfg.Address == "" {
		return nil, ErrInvalidConfig
	}
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	c := &Client{cfg: cfg, opts: o}
	c.instrument()
	return c, nil
}

func (c *Client) OnConnected(fn func(*Client, *Conn))       { c.onConnected.add(fn) }
func (c *Client) OnReceived(fn func(*Conn, *buffer.Buffer)) { c.onReceived.add(fn) }
func (c *Client) OnAttemptReconnect(fn func(*Conn))         { c.onAttemptReconnect.add(fn) }
func (c *Client) OnDisconnected(fn func(*Conn))             { c.onDisconnected.add(fn) }
func (c *Client) OnClosed(fn func(*Client))                 { c.onClosed.add(fn) }

// Config returns the client configuration.
func (c *Client) Config() ClientConfig { return c.cfg }

// Binder returns the Binder the connection ids come from.
func (c *Client) Binder() *socket.Binder { return c.opts.binder }

// Conn returns the live connection, or nil.
func (c *Client) Conn() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// IsConnected reports whether a live connection exists.
func (c *Client) IsConnected() bool {
	conn := c.Conn()
	return conn != nil && conn.IsConnected()
}

// Connect dials the endpoint and starts the read loop. It is a no-op when
// already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil && c.conn.IsConnected() {
		c.mu.Unlock()
		return nil
	}
	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.conn = conn
	c.mu.Unlock()

	c.onConnected.each(func(fn func(*Client, *Conn)) { fn(c, conn) })
	go conn.readLoop()
	return nil
}

// Reconnect drops the current connection, waits for its read loop and
// dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	old := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if old != nil {
		_ = old.Close()
		select {
		case <-old.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.Connect(ctx)
}

func (c *Client) dial(ctx context.Context) (*Conn, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, err
	}
	if tcp, ok := nc.(*net.TCPConn); ok {
		if err := tuneTCP(tcp); err != nil {
			c.opts.logger.Debug("tcp tuning failed", zap.Error(err))
		}
	}

	conn := newConn(nc, c.opts.binder, c.cfg.Timeout, c.cfg.ReadBufferSize, c.opts)
	conn.hooks = connHooks{
		received: func(conn *Conn, b *buffer.Buffer) {
			c.onReceived.each(func(fn func(*Conn, *buffer.Buffer)) { fn(conn, b) })
		},
		attemptReconnect: func(conn *Conn) {
			c.onAttemptReconnect.each(func(fn func(*Conn)) { fn(conn) })
		},
		disconnected: func(conn *Conn) {
			c.onDisconnected.each(func(fn func(*Conn)) { fn(conn) })
		},
		teardown: c.release,
	}
	return conn, nil
}

// release forgets conn once its read loop ended, unless a newer connection
// replaced it.
func (c *Client) release(conn *Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

// Send writes the encoded part of buf on the live connection.
func (c *Client) Send(buf *buffer.Buffer) error {
	conn := c.Conn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(buf)
}

// Close releases the connection and its id and emits closed once. Safe to
// call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	c.onClosed.each(func(fn func(*Client)) { fn(c) })
	return err
}
