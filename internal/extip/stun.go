package extip

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pion/stun"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultSTUNServers are public STUN endpoints.
var DefaultSTUNServers = []string{
	"stun.l.google.com:19302",
	"stun1.l.google.com:19302",
	"stun.cloudflare.com:3478",
}

const stunMaxMessage = 1500

// STUNDiscoverer sends a binding request and reads the mapped address out
// of the response.
type STUNDiscoverer struct {
	servers []string
	timeout time.Duration
	log     *zap.Logger
	cache   cache[*net.UDPAddr]
}

func NewSTUNDiscoverer(servers []string, logger *zap.Logger) *STUNDiscoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &STUNDiscoverer{
		servers: servers,
		timeout: 3 * time.Second,
		log:     logger.Named("extip.stun"),
		cache:   cache[*net.UDPAddr]{cacheFor: defaultCacheFor},
	}
}

// SetTimeout bounds each server query.
func (d *STUNDiscoverer) SetTimeout(timeout time.Duration) { d.timeout = timeout }

// SetCacheDuration changes how long an answer is reused. Zero disables
// caching.
func (d *STUNDiscoverer) SetCacheDuration(dur time.Duration) { d.cache.setDuration(dur) }

func (d *STUNDiscoverer) Discover(ctx context.Context) (net.IP, error) {
	addr, err := d.DiscoverAddr(ctx)
	if err != nil {
		return nil, err
	}
	return addr.IP, nil
}

// DiscoverAddr returns the mapped address including the port the NAT
// assigned to the query socket.
func (d *STUNDiscoverer) DiscoverAddr(ctx context.Context) (*net.UDPAddr, error) {
	if addr, ok := d.cache.get(); ok {
		return addr, nil
	}
	if len(d.servers) == 0 {
		return nil, ErrNoServers
	}

	var errs error
	for _, server := range d.servers {
		addr, err := d.query(ctx, server)
		if err == nil {
			d.cache.set(addr)
			return addr, nil
		}
		d.log.Debug("stun server failed", zap.String("server", server), zap.Error(err))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = multierr.Append(errs, err)
	}
	return nil, errs
}

func (d *STUNDiscoverer) query(ctx context.Context, server string) (*net.UDPAddr, error) {
	raddr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", server, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", server, err)
	}
	defer conn.Close()

	// unblock the read when ctx ends first
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline := time.Now().Add(d.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if _, err := req.WriteTo(conn); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	buf := make([]byte, stunMaxMessage)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read response: %w", err)
		}

		res := &stun.Message{Raw: buf[:n]}
		if err := res.Decode(); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if res.TransactionID != req.TransactionID {
			// stale answer to an earlier query
			continue
		}
		return mappedAddress(res)
	}
}

// mappedAddress prefers XOR-MAPPED-ADDRESS and falls back to the legacy
// MAPPED-ADDRESS.
func mappedAddress(res *stun.Message) (*net.UDPAddr, error) {
	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(res); err == nil {
		return &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}, nil
	}
	var mapped stun.MappedAddress
	if err := mapped.GetFrom(res); err != nil {
		return nil, fmt.Errorf("no mapped address in response: %w", err)
	}
	return &net.UDPAddr{IP: mapped.IP, Port: mapped.Port}, nil
}
