package server

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/skshohagmiah/sockit/internal/kv"
	"github.com/skshohagmiah/sockit/pkg/buffer"
	"github.com/skshohagmiah/sockit/pkg/protocol"
	"github.com/skshohagmiah/sockit/pkg/socket"
	"github.com/skshohagmiah/sockit/pkg/transport"
)

// Config selects the endpoints the service listens on.
type Config struct {
	TCP transport.TCPServerConfig

	// UDP echoes datagrams back to their sender, for reachability probes.
	EnableUDP bool
	UDP       transport.UDPServerConfig

	// EchoRate caps echoed datagrams per second across all senders, with
	// EchoBurst headroom. Zero means unlimited.
	EchoRate  float64
	EchoBurst int
}

// DefaultConfig listens for KV clients on every interface and leaves UDP
// off.
func DefaultConfig() Config {
	return Config{
		TCP:       transport.DefaultTCPServerConfig(),
		UDP:       transport.DefaultUDPServerConfig(),
		EchoRate:  1000,
		EchoBurst: 100,
	}
}

// Service answers protocol requests arriving on a TCP server out of a KV
// store. Each connection is served in arrival order by its own read loop.
type Service struct {
	store kv.KV
	log   *zap.Logger

	tcp  *transport.TCPServer
	udp  *transport.UDPServer
	echo *rate.Limiter

	framers sync.Map // *transport.Conn -> *protocol.Framer

	opsProcessed    atomic.Uint64
	opsErrors       atomic.Uint64
	activeConns     atomic.Int64
	rejectedConns   atomic.Uint64
	datagramsEchoed atomic.Uint64
	echoDropped     atomic.Uint64
	startedAt       atomic.Int64
}

// New opens the configured endpoints. The TCP and UDP servers share one
// Binder unless opts supply another. Nothing is served until Start.
func New(store kv.KV, cfg Config, logger *zap.Logger, opts ...transport.Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]transport.Option{
		transport.WithLogger(logger),
		transport.WithBinder(socket.NewBinder()),
	}, opts...)

	s := &Service{store: store, log: logger.Named("service")}

	tcp, err := transport.NewTCPServer(cfg.TCP, opts...)
	if err != nil {
		return nil, err
	}
	s.tcp = tcp
	s.tcp.OnConnected(s.connected)
	s.tcp.OnReceived(s.received)
	s.tcp.OnOverflow(func(*transport.TCPServer, *transport.Conn) { s.rejectedConns.Add(1) })
	s.tcp.OnDisconnected(s.disconnected)

	if cfg.EnableUDP {
		// echo replies must carry exactly the received bytes
		cfg.UDP.Alignment = 1
		udp, err := transport.NewUDPServer(cfg.UDP, opts...)
		if err != nil {
			return nil, multierr.Append(err, tcp.Close())
		}
		s.udp = udp
		s.echo = rate.NewLimiter(rate.Inf, 0)
		if cfg.EchoRate > 0 {
			s.echo = rate.NewLimiter(rate.Limit(cfg.EchoRate), max(cfg.EchoBurst, 1))
		}
		s.udp.OnReceived(s.echoDatagram)
	}
	return s, nil
}

// Start runs the accept loop and, when enabled, the UDP receive loop.
func (s *Service) Start() error {
	s.startedAt.Store(time.Now().UnixNano())
	if err := s.tcp.Start(); err != nil {
		return err
	}
	if s.udp != nil {
		if err := s.udp.Start(); err != nil {
			return multierr.Append(err, s.tcp.Close())
		}
	}
	s.log.Info("service started", zap.Stringer("tcp", s.tcp.Addr()), zap.Bool("udp", s.udp != nil))
	return nil
}

// Stop closes every endpoint and client. The store stays open.
func (s *Service) Stop() error {
	err := s.tcp.Close()
	if s.udp != nil {
		err = multierr.Append(err, s.udp.Close())
	}
	return err
}

// TCPAddr returns the KV listener address, or nil when stopped.
func (s *Service) TCPAddr() net.Addr { return s.tcp.Addr() }

// UDPAddr returns the echo address, or nil when UDP is off or stopped.
func (s *Service) UDPAddr() net.Addr {
	if s.udp == nil {
		return nil
	}
	return s.udp.Addr()
}

// TCPServer exposes the underlying server for extra observers.
func (s *Service) TCPServer() *transport.TCPServer { return s.tcp }

func (s *Service) connected(_ *transport.TCPServer, c *transport.Conn) {
	s.framers.Store(c, &protocol.Framer{})
	s.activeConns.Add(1)
}

func (s *Service) disconnected(c *transport.Conn) {
	if _, ok := s.framers.LoadAndDelete(c); ok {
		s.activeConns.Add(-1)
	}
}

func (s *Service) received(c *transport.Conn, b *buffer.Buffer) {
	v, ok := s.framers.Load(c)
	if !ok {
		return
	}
	f := v.(*protocol.Framer)
	f.Push(b.Data())

	for {
		frame, err := f.Next()
		if err != nil {
			s.opsErrors.Add(1)
			c.Logger().Warn("dropping client after malformed frame", zap.Error(err))
			s.reply(c, errorResponse(err))
			_ = c.Close()
			return
		}
		if frame == nil {
			return
		}

		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			s.opsErrors.Add(1)
			s.reply(c, errorResponse(err))
			continue
		}
		s.reply(c, s.handle(req))
	}
}

func (s *Service) reply(c *transport.Conn, resp *buffer.Buffer) {
	if err := c.Send(resp); err != nil && !errors.Is(err, transport.ErrNotConnected) {
		c.Logger().Debug("send response failed", zap.Error(err))
	}
}

func (s *Service) echoDatagram(u *transport.UDPServer, b *buffer.Buffer, from *net.UDPAddr) {
	if !s.echo.Allow() {
		s.echoDropped.Add(1)
		return
	}
	if err := b.Seek(b.Len(), false); err != nil {
		return
	}
	if _, err := u.SendTo(b, from); err != nil {
		s.log.Debug("udp echo failed", zap.Stringer("to", from), zap.Error(err))
		return
	}
	s.datagramsEchoed.Add(1)
}

// Stats is a snapshot of service counters.
type Stats struct {
	ActiveConnections   int64         `json:"active_connections"`
	RegisteredClients   int           `json:"registered_clients"`
	RejectedConnections uint64        `json:"rejected_connections"`
	OpsProcessed        uint64        `json:"ops_processed"`
	OpsErrors           uint64        `json:"ops_errors"`
	DatagramsEchoed     uint64        `json:"datagrams_echoed"`
	EchoDropped         uint64        `json:"echo_dropped"`
	Uptime              time.Duration `json:"uptime"`
}

// Stats returns the current counters.
func (s *Service) Stats() Stats {
	st := Stats{
		ActiveConnections:   s.activeConns.Load(),
		RegisteredClients:   s.tcp.Count(),
		RejectedConnections: s.rejectedConns.Load(),
		OpsProcessed:        s.opsProcessed.Load(),
		OpsErrors:           s.opsErrors.Load(),
		DatagramsEchoed:     s.datagramsEchoed.Load(),
		EchoDropped:         s.echoDropped.Load(),
	}
	if started := s.startedAt.Load(); started != 0 {
		st.Uptime = time.Since(time.Unix(0, started))
	}
	return st
}
