package transport

import (
	"net"
	"time"

	"go.uber.org/multierr"
)

const (
	// lingerOff lets Close return at once while the kernel flushes in the
	// background.
	lingerOff = -1

	keepAlivePeriod = 30 * time.Second
)

// tuneTCP disables the linger delay and Nagle buffering and turns on
// keepalive probes.
func tuneTCP(conn *net.TCPConn) error {
	return multierr.Combine(
		conn.SetLinger(lingerOff),
		conn.SetNoDelay(true),
		conn.SetKeepAlive(true),
		conn.SetKeepAlivePeriod(keepAlivePeriod),
	)
}
