package socket

import (
	"container/heap"
	"strconv"
	"sync"
)

// ID identifies a bound socket within one Binder.
type ID int

// NoID is reported by containers that are not bound.
const NoID ID = -1

func (id ID) String() string {
	if id < 0 {
		return "unbound"
	}
	return strconv.Itoa(int(id))
}

// Binder hands out small recyclable socket ids. Freed ids are reused in
// ascending order before new ones are minted. A Binder is safe for
// concurrent use; connections spawned from one server share it.
type Binder struct {
	mu    sync.Mutex
	free  idHeap
	bound map[ID]struct{}
	next  ID
}

// NewBinder returns an empty Binder whose first id is 0.
func NewBinder() *Binder {
	return &Binder{bound: make(map[ID]struct{})}
}

// Bind returns the smallest freed id, or mints a new one.
func (b *Binder) Bind() ID {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound == nil {
		b.bound = make(map[ID]struct{})
	}

	var id ID
	if b.free.Len() > 0 {
		id = heap.Pop(&b.free).(ID)
	} else {
		id = b.next
		b.next++
	}
	b.bound[id] = struct{}{}
	return id
}

// Unbind frees id. Unknown or already freed ids are ignored.
func (b *Binder) Unbind(id ID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id < 0 || id >= b.next {
		return
	}
	if _, ok := b.bound[id]; !ok {
		return
	}
	delete(b.bound, id)
	heap.Push(&b.free, id)
}

// IsBound reports whether id is currently held.
func (b *Binder) IsBound(id ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.bound[id]
	return ok
}

// Len returns the number of bound ids.
func (b *Binder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bound)
}

// idHeap is a min-heap of freed ids.
type idHeap []ID

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *idHeap) Push(x any) { *h = append(*h, x.(ID)) }

func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	id := old[n-1]
	*h = old[:n-1]
	return id
}
