package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/pkg/buffer"
	"github.com/skshohagmiah/sockit/pkg/socket"
)

// TCPServerConfig describes the listening endpoint.
type TCPServerConfig struct {
	Address string
	Port    int

	// MaxConnections caps concurrently registered clients. Zero or less
	// means unbounded.
	MaxConnections int

	// ClientTimeout is the per-client idle check interval. Zero disables
	// the check.
	ClientTimeout time.Duration

	// ReadBufferSize bounds a single read from a client.
	ReadBufferSize int
}

// DefaultTCPServerConfig listens on every interface with no cap.
func DefaultTCPServerConfig() TCPServerConfig {
	return TCPServerConfig{
		Address:        "0.0.0.0",
		Port:           0,
		MaxConnections: 0,
		ClientTimeout:  30 * time.Second,
		ReadBufferSize: defaultReadBufferSize,
	}
}

func (cfg TCPServerConfig) addr() string {
	return net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
}

// TCPServer accepts clients, admits them against MaxConnections and runs
// one read loop per admitted client.
type TCPServer struct {
	socket.Container

	cfg  TCPServerConfig
	opts *options
	log  *zap.Logger

	mu       sync.Mutex
	ln       *net.TCPListener
	bindAddr string
	done     chan struct{}
	running  atomic.Bool
	lastID   atomic.Int64 // last id bound by listen, kept after Close

	conns sync.Map // socket.ID -> *Conn
	count atomic.Int64

	onStarted          observers[func(*TCPServer)]
	onConnected        observers[func(*TCPServer, *Conn)]
	onReceived         observers[func(*Conn, *buffer.Buffer)]
	onAttemptReconnect observers[func(*Conn)]
	onOverflow         observers[func(*TCPServer, *Conn)]
	onDisconnected     observers[func(*Conn)]
	onClosed           observers[func(*TCPServer)]
}

// NewTCPServer opens the listener. The server does not accept until Start.
func NewTCPServer(cfg TCPServerConfig, opts ...Option) (*TCPServer, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	s := &TCPServer{
		cfg:      cfg,
		opts:     o,
		bindAddr: cfg.addr(),
		done:     closedChan(),
	}
	if err := s.listen(); err != nil {
		return nil, err
	}
	s.instrument()
	return s, nil
}

func (s *TCPServer) listen() error {
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", s.bindAddr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ln = ln.(*net.TCPListener)
	// keep the port chosen by the kernel across restarts
	s.bindAddr = ln.Addr().String()
	s.mu.Unlock()

	id := s.Bind(s.opts.binder)
	s.lastID.Store(int64(id))
	s.log = s.opts.logger.With(zap.Int("server_id", int(id)), zap.String("addr", s.bindAddr))
	return nil
}

// Addr returns the listening address, or nil when closed.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Config returns the server configuration.
func (s *TCPServer) Config() TCPServerConfig { return s.cfg }

// Binder returns the Binder shared by the server and its clients.
func (s *TCPServer) Binder() *socket.Binder { return s.opts.binder }

// IsRunning reports whether the accept loop is active.
func (s *TCPServer) IsRunning() bool { return s.running.Load() }

// Done is closed when the current accept loop has exited.
func (s *TCPServer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *TCPServer) OnStarted(fn func(*TCPServer))             { s.onStarted.add(fn) }
func (s *TCPServer) OnConnected(fn func(*TCPServer, *Conn))    { s.onConnected.add(fn) }
func (s *TCPServer) OnReceived(fn func(*Conn, *buffer.Buffer)) { s.onReceived.add(fn) }
func (s *TCPServer) OnAttemptReconnect(fn func(*Conn))         { s.onAttemptReconnect.add(fn) }
func (s *TCPServer) OnOverflow(fn func(*TCPServer, *Conn))     { s.onOverflow.add(fn) }
func (s *TCPServer) OnDisconnected(fn func(*Conn))             { s.onDisconnected.add(fn) }
func (s *TCPServer) OnClosed(fn func(*TCPServer))              { s.onClosed.add(fn) }

// Start spawns the accept loop. It fails with ErrNotInitialized when the
// listener is gone and does nothing when already running.
func (s *TCPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return ErrNotInitialized
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	s.done = make(chan struct{})
	go s.acceptLoop(s.ln, s.done)
	return nil
}

func (s *TCPServer) acceptLoop(ln *net.TCPListener, done chan struct{}) {
	defer func() {
		s.running.Store(false)
		close(done)
		s.onClosed.each(func(fn func(*TCPServer)) { fn(s) })
	}()

	s.onStarted.each(func(fn func(*TCPServer)) { fn(s) })

	for s.running.Load() {
		nc, err := ln.AcceptTCP()
		if err != nil {
			if s.running.Load() && !errors.Is(err, net.ErrClosed) {
				s.log.Warn("accept failed, closing server", zap.Error(err))
				_ = s.Close()
			}
			return
		}
		s.admit(nc)
	}
}

// admit binds an id for the new client, then registers it or rejects it
// against MaxConnections.
func (s *TCPServer) admit(nc *net.TCPConn) {
	c := newConn(nc, s.opts.binder, s.cfg.ClientTimeout, s.cfg.ReadBufferSize, s.opts)

	if limit := s.cfg.MaxConnections; limit > 0 && s.count.Load() >= int64(limit) {
		s.onOverflow.each(func(fn func(*TCPServer, *Conn)) { fn(s, c) })
		_ = c.Close()
		close(c.done)
		return
	}

	if err := tuneTCP(nc); err != nil {
		c.logger.Debug("tcp tuning failed", zap.Error(err))
	}

	c.hooks = connHooks{
		received: func(c *Conn, b *buffer.Buffer) {
			s.onReceived.each(func(fn func(*Conn, *buffer.Buffer)) { fn(c, b) })
		},
		attemptReconnect: func(c *Conn) {
			s.onAttemptReconnect.each(func(fn func(*Conn)) { fn(c) })
		},
		disconnected: func(c *Conn) {
			s.onDisconnected.each(func(fn func(*Conn)) { fn(c) })
		},
		release: s.remove,
	}

	// flag before Store so a Close reached through Conns always deregisters
	c.admitted.Store(true)
	s.count.Add(1)
	s.conns.Store(c.ID(), c)
	if !s.running.Load() {
		// Close ran between Accept and Store and missed this client
		_ = c.Close()
	}
	s.onConnected.each(func(fn func(*TCPServer, *Conn)) { fn(s, c) })
	go c.readLoop()
}

// remove deregisters c. It runs from Conn.Close before the id is freed, so
// no newer client can hold the same id yet. The count drops exactly once per
// admitted client.
func (s *TCPServer) remove(c *Conn) {
	if !c.admitted.CompareAndSwap(true, false) {
		return
	}
	s.conns.CompareAndDelete(c.ID(), c)
	s.count.Add(-1)
}

// Conn looks up a registered client.
func (s *TCPServer) Conn(id socket.ID) (*Conn, bool) {
	v, ok := s.conns.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Conn), true
}

// Conns returns a snapshot of the registered clients.
func (s *TCPServer) Conns() []*Conn {
	var out []*Conn
	s.conns.Range(func(_, v any) bool {
		out = append(out, v.(*Conn))
		return true
	})
	return out
}

// Count returns the number of registered clients.
func (s *TCPServer) Count() int { return int(s.count.Load()) }

// Broadcast sends buf to every registered client and returns the combined
// write errors.
func (s *TCPServer) Broadcast(buf *buffer.Buffer) error {
	var err error
	for _, c := range s.Conns() {
		err = multierr.Append(err, c.Send(buf))
	}
	return err
}

// Close stops accepting, closes the listener and every client, and
// releases the server id. The accept loop observes the status flag and
// exits, emitting closed. Safe to call repeatedly.
func (s *TCPServer) Close() error {
	s.running.Store(false)

	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = multierr.Append(err, ln.Close())
	}
	for _, c := range s.Conns() {
		if cerr := c.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	s.Unbind()
	return err
}

// Restart closes the server, waits for the accept loop to exit, listens
// again on the same address and starts. Do not call it from an observer
// running on the accept loop.
func (s *TCPServer) Restart() error {
	done := s.Done()
	if err := s.Close(); err != nil {
		s.log.Debug("close before restart", zap.Error(err))
	}
	<-done
	if err := s.listen(); err != nil {
		return err
	}
	return s.Start()
}
