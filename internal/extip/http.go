package extip

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultHTTPServices answer GET with the caller's address as plain text.
var DefaultHTTPServices = []string{
	"https://api.ipify.org",
	"https://checkip.amazonaws.com",
	"https://icanhazip.com",
}

// maxAnswer bounds the body read from an echo service.
const maxAnswer = 256

// HTTPDiscoverer queries plain-text IP echo services in order.
type HTTPDiscoverer struct {
	services []string
	client   *http.Client
	log      *zap.Logger
	cache    cache[net.IP]
}

// NewHTTPDiscoverer builds a discoverer whose requests time out after
// timeout.
func NewHTTPDiscoverer(services []string, timeout time.Duration, logger *zap.Logger) *HTTPDiscoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPDiscoverer{
		services: services,
		client:   &http.Client{Timeout: timeout},
		log:      logger.Named("extip.http"),
		cache:    cache[net.IP]{cacheFor: defaultCacheFor},
	}
}

// SetCacheDuration changes how long an answer is reused. Zero disables
// caching.
func (d *HTTPDiscoverer) SetCacheDuration(dur time.Duration) {
	d.cache.setDuration(dur)
}

func (d *HTTPDiscoverer) Discover(ctx context.Context) (net.IP, error) {
	if ip, ok := d.cache.get(); ok {
		return ip, nil
	}
	if len(d.services) == 0 {
		return nil, ErrNoServers
	}

	var errs error
	for _, url := range d.services {
		ip, err := d.query(ctx, url)
		if err == nil {
			d.cache.set(ip)
			return ip, nil
		}
		d.log.Debug("ip service failed", zap.String("url", url), zap.Error(err))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = multierr.Append(errs, err)
	}
	return nil, errs
}

func (d *HTTPDiscoverer) query(ctx context.Context, url string) (net.IP, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswer))
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil {
		return nil, fmt.Errorf("%w: %s: %q", ErrBadAnswer, url, body)
	}
	return ip, nil
}
