package transport

import (
	"net"

	"github.com/hashicorp/go-metrics"
	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/pkg/buffer"
	"github.com/skshohagmiah/sockit/pkg/socket"
)

var (
	MetricTCPAcceptedCount         = []string{"sockit", "tcp", "accepted", "count"}
	MetricTCPOverflowCount         = []string{"sockit", "tcp", "overflow", "count"}
	MetricTCPDisconnectedCount     = []string{"sockit", "tcp", "disconnected", "count"}
	MetricTCPAttemptReconnectCount = []string{"sockit", "tcp", "attempt", "reconnect", "count"}
	MetricTCPInBytes               = []string{"sockit", "tcp", "in", "bytes"}
	MetricTCPClients               = []string{"sockit", "tcp", "clients"}
	MetricUDPInBytes               = []string{"sockit", "udp", "in", "bytes"}
	MetricUDPDatagramCount         = []string{"sockit", "udp", "datagram", "count"}
	MetricClientConnectedCount     = []string{"sockit", "client", "connected", "count"}
	MetricClientInBytes            = []string{"sockit", "client", "in", "bytes"}
)

type TelemetryLabel string

var (
	LabelServerID TelemetryLabel = "server_id"
	LabelPeerAddr TelemetryLabel = "peer_addr"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (o *options) labels(extra ...metrics.Label) []metrics.Label {
	out := make([]metrics.Label, 0, len(o.metricLabels)+len(extra))
	out = append(out, o.metricLabels...)
	return append(out, extra...)
}

// labels are built per emission so a Restart, which binds a new id, is
// reflected in the server_id label.
func (s *TCPServer) labels() []metrics.Label {
	return s.opts.labels(LabelServerID.M(socket.ID(s.lastID.Load()).String()))
}

func (s *UDPServer) labels() []metrics.Label {
	return s.opts.labels(LabelServerID.M(socket.ID(s.lastID.Load()).String()))
}

// instrument registers the logging and metric observers every server
// carries. They run before any user observer.
func (s *TCPServer) instrument() {
	sink := s.opts.metricSink

	s.OnStarted(func(s *TCPServer) {
		s.log.Info("tcp server started")
	})
	s.OnConnected(func(s *TCPServer, c *Conn) {
		c.logger.Debug("client connected")
		sink.IncrCounterWithLabels(MetricTCPAcceptedCount, 1, s.labels())
		sink.SetGaugeWithLabels(MetricTCPClients, float32(s.Count()), s.labels())
	})
	s.OnReceived(func(c *Conn, b *buffer.Buffer) {
		sink.IncrCounterWithLabels(MetricTCPInBytes, float32(b.Len()), s.labels())
	})
	s.OnAttemptReconnect(func(c *Conn) {
		c.logger.Debug("client idle, checking connectivity")
		sink.IncrCounterWithLabels(MetricTCPAttemptReconnectCount, 1, s.labels())
	})
	s.OnOverflow(func(s *TCPServer, c *Conn) {
		c.logger.Warn("connection limit reached, rejecting client",
			zap.Int("max_connections", s.cfg.MaxConnections))
		sink.IncrCounterWithLabels(MetricTCPOverflowCount, 1, s.labels())
	})
	s.OnDisconnected(func(c *Conn) {
		c.logger.Debug("client disconnected")
		sink.IncrCounterWithLabels(MetricTCPDisconnectedCount, 1, s.labels())
	})
	s.OnClosed(func(s *TCPServer) {
		s.log.Info("tcp server closed")
	})
}

func (s *UDPServer) instrument() {
	sink := s.opts.metricSink

	s.OnStarted(func(s *UDPServer) {
		s.log.Info("udp server started")
	})
	s.OnReceived(func(s *UDPServer, b *buffer.Buffer, addr *net.UDPAddr) {
		s.log.Debug("datagram received", zap.Stringer("from", addr), zap.Int("size", b.Len()))
		sink.IncrCounterWithLabels(MetricUDPDatagramCount, 1, s.labels())
		sink.IncrCounterWithLabels(MetricUDPInBytes, float32(b.Len()), s.labels())
	})
	s.OnClosed(func(s *UDPServer) {
		s.log.Info("udp server closed")
	})
}

func (c *Client) instrument() {
	sink := c.opts.metricSink
	labels := c.opts.labels(LabelPeerAddr.M(c.cfg.Address))

	c.OnConnected(func(c *Client, conn *Conn) {
		conn.logger.Debug("connected")
		sink.IncrCounterWithLabels(MetricClientConnectedCount, 1, labels)
	})
	c.OnReceived(func(conn *Conn, b *buffer.Buffer) {
		sink.IncrCounterWithLabels(MetricClientInBytes, float32(b.Len()), labels)
	})
	c.OnDisconnected(func(conn *Conn) {
		conn.logger.Debug("disconnected")
	})
}
