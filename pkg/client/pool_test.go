package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newPool(t *testing.T, addr string, minSize, maxSize int) *Pool {
	t.Helper()
	cfg := DefaultPoolConfig(addr)
	cfg.MinSize, cfg.MaxSize = minSize, maxSize
	p, err := NewPool(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPoolInvalidSize(t *testing.T) {
	for _, tc := range []struct{ min, max int }{{-1, 4}, {0, 0}, {5, 2}} {
		cfg := DefaultPoolConfig("127.0.0.1:1")
		cfg.MinSize, cfg.MaxSize = tc.min, tc.max
		_, err := NewPool(context.Background(), cfg, nil)
		assert.ErrorIs(t, err, ErrInvalidPoolSize, "min=%d max=%d", tc.min, tc.max)
	}
}

func TestPoolPrefills(t *testing.T) {
	svc := startService(t)
	p := newPool(t, svc.TCPAddr().String(), 2, 4)

	st := p.Stats()
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 2, st.Available)
	assert.Equal(t, 2, p.Binder().Len())
}

func TestPoolConcurrentRequests(t *testing.T) {
	svc := startService(t)
	p := newPool(t, svc.TCPAddr().String(), 1, 4)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			err := p.Do(ctx, func(c *TCPClient) error {
				if err := c.Set(ctx, key, []byte(key)); err != nil {
					return err
				}
				got, err := c.Get(ctx, key)
				if err != nil {
					return err
				}
				assert.Equal(t, key, string(got))
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st := p.Stats()
	assert.LessOrEqual(t, st.Active, 4)
	assert.Equal(t, st.Active, st.Available)
}

func TestPoolWaitsAtMaxSize(t *testing.T) {
	svc := startService(t)
	p := newPool(t, svc.TCPAddr().String(), 0, 1)

	held, err := p.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Put(held, false)
	again, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, held, again)
	p.Put(again, false)
}

func TestPoolDropsBrokenClient(t *testing.T) {
	svc := startService(t)
	p := newPool(t, svc.TCPAddr().String(), 1, 2)

	c, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(c, true)

	assert.Equal(t, 0, p.Stats().Active)
	assert.Zero(t, p.Binder().Len())
}

func TestPoolClose(t *testing.T) {
	svc := startService(t)
	p := newPool(t, svc.TCPAddr().String(), 2, 2)

	out, err := p.Get(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	p.Put(out, false)
	assert.Equal(t, 0, p.Stats().Active)
	assert.Zero(t, p.Binder().Len())
}

func TestPoolDialFailure(t *testing.T) {
	cfg := DefaultPoolConfig("127.0.0.1:1")
	cfg.Client.DialTimeout = time.Second
	_, err := NewPool(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
