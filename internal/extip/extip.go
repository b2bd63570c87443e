// Package extip finds the address this host is reachable at from the
// internet, through STUN or plain-text HTTP echo services.
package extip

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrNoServers = errors.New("extip: no servers configured")
	ErrBadAnswer = errors.New("extip: answer is not an IP address")
)

const defaultCacheFor = 5 * time.Minute

// Discoverer reports the public IP of this host.
type Discoverer interface {
	Discover(ctx context.Context) (net.IP, error)
}

// cache remembers the last successful answer for a while.
type cache[T any] struct {
	mu       sync.RWMutex
	val      T
	ok       bool
	at       time.Time
	cacheFor time.Duration
}

func (c *cache[T]) get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ok && time.Since(c.at) < c.cacheFor {
		return c.val, true
	}
	var zero T
	return zero, false
}

func (c *cache[T]) set(v T) {
	c.mu.Lock()
	c.val, c.ok, c.at = v, true, time.Now()
	c.mu.Unlock()
}

func (c *cache[T]) setDuration(d time.Duration) {
	c.mu.Lock()
	c.cacheFor = d
	c.mu.Unlock()
}

// Chain asks each Discoverer in turn and returns the first answer.
type Chain []Discoverer

func (ch Chain) Discover(ctx context.Context) (net.IP, error) {
	if len(ch) == 0 {
		return nil, ErrNoServers
	}
	var errs error
	for _, d := range ch {
		ip, err := d.Discover(ctx)
		if err == nil {
			return ip, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = multierr.Append(errs, err)
	}
	return nil, errs
}

// Default tries the public STUN servers first and falls back to the HTTP
// echo services.
func Default(logger *zap.Logger) Chain {
	return Chain{
		NewSTUNDiscoverer(DefaultSTUNServers, logger),
		NewHTTPDiscoverer(DefaultHTTPServices, 5*time.Second, logger),
	}
}
