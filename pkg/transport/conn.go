package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/pkg/buffer"
	"github.com/skshohagmiah/sockit/pkg/socket"
)

const defaultReadBufferSize = 64 * 1024

// connHooks are supplied by whoever owns the Conn (a TCPServer or a Client).
type connHooks struct {
	received         func(*Conn, *buffer.Buffer)
	attemptReconnect func(*Conn)
	disconnected     func(*Conn)
	// release runs inside Close while the socket id is still held.
	release func(*Conn)
	// teardown runs after the read loop has closed the Conn.
	teardown func(*Conn)
}

// Conn is one established TCP stream, accepted by a TCPServer or dialed by
// a Client. It owns its socket id, the transport, a connectivity flag and
// an idle timeout budget.
type Conn struct {
	socket.Container

	id       socket.ID
	conn     net.Conn
	session  uuid.UUID
	timeout  time.Duration
	readSize int
	clock    clock.Clock
	logger   *zap.Logger
	hooks    connHooks

	connected atomic.Bool
	admitted  atomic.Bool
	writeMu   sync.Mutex

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newConn(nc net.Conn, binder *socket.Binder, timeout time.Duration, readSize int, o *options) *Conn {
	if readSize <= 0 {
		readSize = defaultReadBufferSize
	}
	c := &Conn{
		conn:     nc,
		session:  uuid.New(),
		timeout:  timeout,
		readSize: readSize,
		clock:    o.clock,
		done:     make(chan struct{}),
	}
	c.id = c.Bind(binder)
	c.logger = o.logger.With(
		zap.Int("socket_id", int(c.id)),
		zap.Stringer("remote", nc.RemoteAddr()),
		zap.Stringer("session", c.session),
	)
	c.connected.Store(true)
	return c
}

// ID returns the socket id the connection was registered under. It stays
// valid after Close, unlike SocketID.
func (c *Conn) ID() socket.ID { return c.id }

// Session returns a random tag identifying this connection in logs.
func (c *Conn) Session() uuid.UUID { return c.session }

// Timeout returns the idle check interval.
func (c *Conn) Timeout() time.Duration { return c.timeout }

func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
func (c *Conn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }

// Logger returns the connection logger, tagged with its id, remote address
// and session.
func (c *Conn) Logger() *zap.Logger { return c.logger }

// NetConn exposes the underlying stream.
func (c *Conn) NetConn() net.Conn { return c.conn }

// IsConnected reports the connectivity flag.
func (c *Conn) IsConnected() bool { return c.connected.Load() }

// Done is closed once the read loop has exited and the connection is torn
// down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send writes the encoded part of buf, i.e. the bytes up to its cursor.
func (c *Conn) Send(buf *buffer.Buffer) error {
	if buf == nil {
		return ErrNilBuffer
	}
	_, err := c.Write(buf.Bytes())
	return err
}

// Write sends p as is. Concurrent writers are serialized.
func (c *Conn) Write(p []byte) (int, error) {
	if !c.connected.Load() {
		return 0, ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(p)
}

// Close releases the transport, deregisters the connection from its owner
// and then frees the socket id. Safe to call repeatedly and from observers.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.closeErr = c.conn.Close()
		if c.hooks.release != nil {
			c.hooks.release(c)
		}
		c.Unbind()
	})
	return c.closeErr
}

// sample re-reads the connectivity flag after an idle timeout.
func (c *Conn) sample() bool {
	return c.connected.Load()
}

// readLoop delivers inbound bytes in arrival order until the connectivity
// flag drops, then reports the disconnect and tears the connection down.
func (c *Conn) readLoop() {
	defer close(c.done)

	scratch := make([]byte, c.readSize)
	lastCheck := c.clock.Now()

	for c.connected.Load() {
		if c.timeout > 0 {
			elapsed := c.clock.Since(lastCheck)
			if elapsed >= c.timeout {
				c.hooks.attemptReconnect(c)
				if !c.sample() {
					break
				}
				lastCheck = c.clock.Now()
				continue
			}
			// The deadline only wakes the read up so the check above runs
			// again; the idle budget itself is measured on c.clock.
			_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout - elapsed))
		}

		n, err := c.conn.Read(scratch)
		if n > 0 {
			buf, _ := buffer.Wrap(scratch[:n], 1)
			c.hooks.received(c, buf)
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			c.logger.Debug("read loop ending", zap.Error(err))
			c.connected.Store(false)
		}
	}

	c.hooks.disconnected(c)
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("close after disconnect", zap.Error(err))
	}
	if c.hooks.teardown != nil {
		c.hooks.teardown(c)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
