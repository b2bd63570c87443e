package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/pkg/buffer"
	"github.com/skshohagmiah/sockit/pkg/socket"
)

const maxDatagramSize = 65535

// UDPServerConfig describes the UDP endpoint. Broadcast and address reuse
// are always enabled on the socket.
type UDPServerConfig struct {
	BindAddr string
	Port     int

	// Alignment of the buffers handed to OnReceived observers.
	Alignment int

	// MaxDatagramSize bounds a single receive.
	MaxDatagramSize int
}

// DefaultUDPServerConfig binds every interface with byte alignment.
func DefaultUDPServerConfig() UDPServerConfig {
	return UDPServerConfig{
		BindAddr:        "0.0.0.0",
		Alignment:       1,
		MaxDatagramSize: maxDatagramSize,
	}
}

// UDPServer owns a UDP socket. Its receive loop turns every datagram into a
// Buffer and dispatches it on its own goroutine.
type UDPServer struct {
	socket.Container

	cfg  UDPServerConfig
	opts *options
	log  *zap.Logger

	mu       sync.Mutex
	pc       *net.UDPConn
	bindAddr string
	done     chan struct{}
	running  atomic.Bool
	lastID   atomic.Int64

	onStarted  observers[func(*UDPServer)]
	onReceived observers[func(*UDPServer, *buffer.Buffer, *net.UDPAddr)]
	onClosed   observers[func(*UDPServer)]
}

// NewUDPServer opens the socket. Receiving starts with Start.
func NewUDPServer(cfg UDPServerConfig, opts ...Option) (*UDPServer, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.Alignment == 0 {
		cfg.Alignment = 1
	}
	if _, err := buffer.New(0, cfg.Alignment); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.MaxDatagramSize <= 0 || cfg.MaxDatagramSize > maxDatagramSize {
		cfg.MaxDatagramSize = maxDatagramSize
	}
	s := &UDPServer{
		cfg:      cfg,
		opts:     o,
		bindAddr: net.JoinHostPort(cfg.BindAddr, strconv.Itoa(cfg.Port)),
		done:     closedChan(),
	}
	if err := s.listen(); err != nil {
		return nil, err
	}
	s.instrument()
	return s, nil
}

func (s *UDPServer) listen() error {
	lc := net.ListenConfig{Control: udpControl}
	pc, err := lc.ListenPacket(context.Background(), "udp", s.bindAddr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pc = pc.(*net.UDPConn)
	s.bindAddr = pc.LocalAddr().String()
	s.mu.Unlock()

	id := s.Bind(s.opts.binder)
	s.lastID.Store(int64(id))
	s.log = s.opts.logger.With(zap.Int("server_id", int(id)), zap.String("addr", s.bindAddr))
	return nil
}

// Addr returns the local address, or nil when closed.
func (s *UDPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pc == nil {
		return nil
	}
	return s.pc.LocalAddr()
}

// Config returns the server configuration.
func (s *UDPServer) Config() UDPServerConfig { return s.cfg }

// IsRunning reports whether the receive loop is active.
func (s *UDPServer) IsRunning() bool { return s.running.Load() }

// Done is closed when the current receive loop has exited.
func (s *UDPServer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *UDPServer) OnStarted(fn func(*UDPServer)) { s.onStarted.add(fn) }
func (s *UDPServer) OnReceived(fn func(*UDPServer, *buffer.Buffer, *net.UDPAddr)) {
	s.onReceived.add(fn)
}
func (s *UDPServer) OnClosed(fn func(*UDPServer)) { s.onClosed.add(fn) }

// Start spawns the receive loop. It fails with ErrNotInitialized when the
// socket is gone and does nothing when already running.
func (s *UDPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pc == nil {
		return ErrNotInitialized
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	s.done = make(chan struct{})
	go s.receiveLoop(s.pc, s.done)
	return nil
}

func (s *UDPServer) receiveLoop(pc *net.UDPConn, done chan struct{}) {
	defer func() {
		s.running.Store(false)
		close(done)
		s.onClosed.each(func(fn func(*UDPServer)) { fn(s) })
	}()

	s.onStarted.each(func(fn func(*UDPServer)) { fn(s) })

	scratch := make([]byte, s.cfg.MaxDatagramSize)
	for s.running.Load() {
		n, addr, err := pc.ReadFromUDP(scratch)
		if err != nil {
			if s.running.Load() && !errors.Is(err, net.ErrClosed) {
				s.log.Warn("receive failed, closing server", zap.Error(err))
				_ = s.Close()
			}
			return
		}
		buf, err := buffer.Wrap(scratch[:n], s.cfg.Alignment)
		if err != nil {
			continue
		}
		// a slow observer must not hold up the next datagram
		go s.onReceived.each(func(fn func(*UDPServer, *buffer.Buffer, *net.UDPAddr)) { fn(s, buf, addr) })
	}
}

// SendTo writes the encoded part of buf to addr.
func (s *UDPServer) SendTo(buf *buffer.Buffer, addr *net.UDPAddr) (int, error) {
	if buf == nil {
		return 0, ErrNilBuffer
	}
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return 0, ErrClosed
	}
	return pc.WriteToUDP(buf.Bytes(), addr)
}

// Close releases the socket and the server id. Safe to call repeatedly.
func (s *UDPServer) Close() error {
	s.running.Store(false)

	s.mu.Lock()
	pc := s.pc
	s.pc = nil
	s.mu.Unlock()

	var err error
	if pc != nil {
		err = pc.Close()
	}
	s.Unbind()
	return err
}

// Restart closes the socket, waits for the receive loop, reopens on the same
// address and starts again.
func (s *UDPServer) Restart() error {
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
