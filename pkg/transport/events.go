package transport

import "sync"

// observers is a registration list of callbacks. Zero or more observers may
// be registered; dispatching to an empty list does nothing.
type observers[F any] struct {
	mu  sync.RWMutex
	fns []F
}

func (o *observers[F]) add(fn F) {
	o.mu.Lock()
	o.fns = append(o.fns, fn)
	o.mu.Unlock()
}

// each calls visit for every observer registered at the time of the call.
func (o *observers[F]) each(visit func(F)) {
	o.mu.RLock()
	fns := o.fns
	o.mu.RUnlock()
	for _, fn := range fns {
		visit(fn)
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
