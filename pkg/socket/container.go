package socket

import "sync"

// Container couples an owner to an id bound from a Binder. Embed it in any
// type that needs a socket id; the zero value is unbound.
type Container struct {
	mu     sync.Mutex
	binder *Binder
	id     ID
	bound  bool
}

// Bind takes an id from binder. It is a no-op when already bound and
// returns the id held either way.
func (c *Container) Bind(binder *Binder) ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bound {
		return c.id
	}
	c.binder = binder
	c.id = binder.Bind()
	c.bound = true
	return c.id
}

// Unbind returns the id to its Binder. Safe to call repeatedly.
func (c *Container) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bound {
		return
	}
	c.binder.Unbind(c.id)
	c.bound = false
	c.id = NoID
	c.binder = nil
}

// SocketID returns the bound id, or NoID.
func (c *Container) SocketID() ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.bound {
		return NoID
	}
	return c.id
}

// IsBound reports whether the container holds an id.
func (c *Container) IsBound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

// Binder returns the Binder the id came from, or nil.
func (c *Container) Binder() *Binder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binder
}
