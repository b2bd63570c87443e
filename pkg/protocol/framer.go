package protocol

import (
	"errors"
	"sync"
)

// Framer reassembles frames from a byte stream that may split or merge
// them. It is safe for concurrent use.
type Framer struct {
	mu      sync.Mutex
	pending []byte
}

// Push appends stream bytes.
func (f *Framer) Push(p []byte) {
	f.mu.Lock()
	f.pending = append(f.pending, p...)
	f.mu.Unlock()
}

// Next pops the next whole frame, or returns nil when more bytes are
// needed. A malformed header poisons the stream; the pending bytes are
// dropped and the error returned.
func (f *Framer) Next() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	size, err := FrameSize(f.pending)
	if errors.Is(err, ErrIncomplete) {
		return nil, nil
	}
	if err != nil {
		f.pending = nil
		return nil, err
	}
	if len(f.pending) < size {
		return nil, nil
	}

	frame := make([]byte, size)
	copy(frame, f.pending)
	f.pending = f.pending[size:]
	if len(f.pending) == 0 {
		f.pending = nil
	}
	return frame, nil
}

// Buffered returns the number of bytes waiting for a complete frame.
func (f *Framer) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Reset drops pending bytes.
func (f *Framer) Reset() {
	f.mu.Lock()
	f.pending = nil
	f.mu.Unlock()
}
