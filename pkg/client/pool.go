package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/pkg/socket"
	"github.com/skshohagmiah/sockit/pkg/transport"
)

var ErrInvalidPoolSize = errors.New("invalid pool size configuration")

// PoolConfig sizes a Pool of clients talking to one server.
type PoolConfig struct {
	Client  Config
	MinSize int
	MaxSize int
}

// DefaultPoolConfig keeps 2 to 16 clients to addr.
func DefaultPoolConfig(addr string) PoolConfig {
	return PoolConfig{
		Client:  DefaultConfig(addr),
		MinSize: 2,
		MaxSize: 16,
	}
}

// PoolStats is a snapshot of pool occupancy.
type PoolStats struct {
	Active    int
	Available int
	MinSize   int
	MaxSize   int
}

// Pool hands out TCPClients so callers can issue requests concurrently.
// Every pooled client binds its socket id from one shared Binder.
type Pool struct {
	cfg    PoolConfig
	log    *zap.Logger
	opts   []transport.Option
	binder *socket.Binder

	idle chan *TCPClient

	mu     sync.Mutex
	active int
	closed bool
}

// NewPool dials MinSize clients up front.
func NewPool(ctx context.Context, cfg PoolConfig, logger *zap.Logger, opts ...transport.Option) (*Pool, error) {
	if cfg.MinSize < 0 || cfg.MaxSize < 1 || cfg.MaxSize < cfg.MinSize {
		return nil, ErrInvalidPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	binder := socket.NewBinder()
	p := &Pool{
		cfg:    cfg,
		log:    logger,
		opts:   append([]transport.Option{transport.WithBinder(binder)}, opts...),
		binder: binder,
		idle:   make(chan *TCPClient, cfg.MaxSize),
	}

	for i := 0; i < cfg.MinSize; i++ {
		p.active++
		c, err := p.dial(ctx)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to create initial client: %w", err), p.Close())
		}
		p.idle <- c
	}
	return p, nil
}

// dial fills a slot already counted in active.
func (p *Pool) dial(ctx context.Context) (*TCPClient, error) {
	c, err := NewTCP(ctx, p.cfg.Client, p.log, p.opts...)
	if err != nil {
		p.drop()
		return nil, err
	}
	return c, nil
}

func (p *Pool) drop() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
}

// Get returns an idle client, dials a new one while under MaxSize, or waits
// for one to be returned.
func (p *Pool) Get(ctx context.Context) (*TCPClient, error) {
	select {
	case c, ok := <-p.idle:
		if !ok {
			return nil, ErrClosed
		}
		return c, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	grow := p.active < p.cfg.MaxSize
	if grow {
		p.active++
	}
	p.mu.Unlock()
	if grow {
		return p.dial(ctx)
	}

	select {
	case c, ok := <-p.idle:
		if !ok {
			return nil, ErrClosed
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns c to the pool. A client that failed with a transport error
// should be passed with broken set so it is closed instead.
func (p *Pool) Put(c *TCPClient, broken bool) {
	if c == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if broken || p.closed {
		p.active--
		_ = c.Close()
		return
	}
	select {
	case p.idle <- c:
	default:
		p.active--
		_ = c.Close()
	}
}

// Do runs fn with a pooled client and returns it afterwards.
func (p *Pool) Do(ctx context.Context, fn func(*TCPClient) error) error {
	c, err := p.Get(ctx)
	if err != nil {
		return err
	}
	err = fn(c)
	p.Put(c, isTransportError(err))
	return err
}

func isTransportError(err error) bool {
	return errors.Is(err, ErrDisconnected) || errors.Is(err, context.DeadlineExceeded)
}

// Stats returns the current occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Active:    p.active,
		Available: len(p.idle),
		MinSize:   p.cfg.MinSize,
		MaxSize:   p.cfg.MaxSize,
	}
}

// Binder returns the Binder shared by the pooled clients.
func (p *Pool) Binder() *socket.Binder { return p.binder }

// Close closes every idle client. Clients handed out are closed when they
// come back. Safe to call repeatedly.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.idle)
	p.mu.Unlock()

	var err error
	for c := range p.idle {
		err = multierr.Append(err, c.Close())
		p.drop()
	}
	return err
}
