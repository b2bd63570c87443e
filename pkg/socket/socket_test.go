package socket

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinderSequential(t *testing.T) {
	b := NewBinder()
	for want := ID(0); want < 5; want++ {
		assert.Equal(t, want, b.Bind())
	}
	assert.Equal(t, 5, b.Len())
}

func TestBinderReusesFreedID(t *testing.T) {
	b := NewBinder()
	id := b.Bind()
	b.Unbind(id)
	assert.False(t, b.IsBound(id))
	assert.Equal(t, id, b.Bind())
	assert.True(t, b.IsBound(id))
}

func TestBinderReusesSmallestFirst(t *testing.T) {
	b := NewBinder()
	for i := 0; i < 6; i++ {
		b.Bind()
	}
	b.Unbind(4)
	b.Unbind(1)
	b.Unbind(3)

	assert.Equal(t, ID(1), b.Bind())
	assert.Equal(t, ID(3), b.Bind())
	assert.Equal(t, ID(4), b.Bind())
	assert.Equal(t, ID(6), b.Bind())
}

func TestBinderScenario(t *testing.T) {
	b := NewBinder()
	require.Equal(t, ID(0), b.Bind())
	require.Equal(t, ID(1), b.Bind())
	require.Equal(t, ID(2), b.Bind())
	b.Unbind(1)
	assert.Equal(t, ID(1), b.Bind())
}

func TestBinderUnbindUnknownIsNoop(t *testing.T) {
	b := NewBinder()
	b.Unbind(7)
	b.Unbind(-3)
	assert.False(t, b.IsBound(7))
	assert.Equal(t, ID(0), b.Bind())

	// double unbind must not hand the id out twice
	b.Unbind(0)
	b.Unbind(0)
	assert.Equal(t, ID(0), b.Bind())
	assert.Equal(t, ID(1), b.Bind())
}

func TestBinderZeroValue(t *testing.T) {
	var b Binder
	assert.Equal(t, ID(0), b.Bind())
	assert.True(t, b.IsBound(0))
}

func TestBinderConcurrentUniqueness(t *testing.T) {
	b := NewBinder()
	const workers, rounds = 16, 200

	var (
		mu   sync.Mutex
		live = make(map[ID]bool)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				id := b.Bind()
				mu.Lock()
				if live[id] {
					t.Errorf("id %d handed out twice", id)
				}
				live[id] = true
				mu.Unlock()

				mu.Lock()
				delete(live, id)
				mu.Unlock()
				b.Unbind(id)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, b.Len())
}

func TestContainerIdempotent(t *testing.T) {
	b := NewBinder()
	var c Container
	assert.False(t, c.IsBound())
	assert.Equal(t, NoID, c.SocketID())

	id := c.Bind(b)
	assert.Equal(t, id, c.Bind(b), "second bind is a no-op")
	assert.Equal(t, 1, b.Len())
	assert.Same(t, b, c.Binder())

	c.Unbind()
	c.Unbind()
	assert.False(t, c.IsBound())
	assert.False(t, b.IsBound(id))
	assert.Nil(t, c.Binder())
	assert.Equal(t, "unbound", c.SocketID().String())
}
