package buffer

import (
	"errors"
	"fmt"
)

// Packed buffer layout
//
// A Buffer is a fixed-capacity byte slice with a cursor. Every typed write
// stores its value little-endian at the cursor, advances past it and then
// rounds the cursor up to the buffer alignment, mirroring a packed struct:
//
//	alignment 4: [int32 5][byte 1][pad pad pad] -> 05 00 00 00 01 00 00 00
//
// Sender and receiver agree on a message by executing the same ordered
// sequence of typed operations. There is no length prefix and no framing.

var (
	ErrOutOfBounds      = errors.New("buffer: operation exceeds storage")
	ErrInvalidAlignment = errors.New("buffer: alignment must be a power of two")
	ErrInvalidLength    = errors.New("buffer: length must not be negative")
)

// OutOfBoundsError describes an unchecked read or write that did not fit.
type OutOfBoundsError struct {
	Op   string
	Pos  int
	Size int
	Len  int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("buffer: %s of %d bytes at %d exceeds storage of %d bytes", e.Op, e.Size, e.Pos, e.Len)
}

func (e *OutOfBoundsError) Is(target error) bool {
	return target == ErrOutOfBounds
}

// Buffer is an alignment-padded byte buffer with a read/write cursor.
// A Buffer is not safe for concurrent use.
type Buffer struct {
	data      []byte
	alignment int
	pos       int
}

// AlignedPosition rounds pos up to the next multiple of alignment.
func AlignedPosition(pos, alignment int) int {
	return (pos + alignment - 1) &^ (alignment - 1)
}

func validAlignment(alignment int) bool {
	return alignment >= 1 && alignment&(alignment-1) == 0
}

// New allocates a buffer whose storage is length rounded up to alignment.
func New(length, alignment int) (*Buffer, error) {
	b := &Buffer{}
	if err := b.Reallocate(length, alignment); err != nil {
		return nil, err
	}
	return b, nil
}

// MustNew is like New but panics on invalid arguments.
func MustNew(length, alignment int) *Buffer {
	b, err := New(length, alignment)
	if err != nil {
		panic(err)
	}
	return b
}

// Wrap copies data into a new buffer with the given alignment.
func Wrap(data []byte, alignment int) (*Buffer, error) {
	b, err := New(len(data), alignment)
	if err != nil {
		return nil, err
	}
	copy(b.data, data)
	return b, nil
}

// Reallocate replaces the storage, dropping its contents and resetting the
// cursor to zero.
func (b *Buffer) Reallocate(length, alignment int) error {
	if length < 0 {
		return ErrInvalidLength
	}
	if !validAlignment(alignment) {
		return fmt.Errorf("%w: %d", ErrInvalidAlignment, alignment)
	}
	b.data = make([]byte, AlignedPosition(length, alignment))
	b.alignment = alignment
	b.pos = 0
	return nil
}

// Release drops the storage. The buffer reports zero length afterwards and
// every non-empty operation fails.
func (b *Buffer) Release() {
	b.data = nil
	b.pos = 0
}

// Len returns the storage size in bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Pos returns the cursor.
func (b *Buffer) Pos() int { return b.pos }

// Alignment returns the cursor alignment.
func (b *Buffer) Alignment() int { return b.alignment }

// Remaining returns the number of bytes between the cursor and the end.
func (b *Buffer) Remaining() int { return len(b.data) - b.pos }

// Data returns the whole storage.
func (b *Buffer) Data() []byte { return b.data }

// Bytes returns the storage up to the cursor, i.e. what has been written.
func (b *Buffer) Bytes() []byte { return b.data[:b.pos] }

// Seek moves the cursor to position, optionally aligning it.
func (b *Buffer) Seek(position int, align bool) error {
	if align {
		position = AlignedPosition(position, b.alignment)
	}
	if position < 0 || position > len(b.data) {
		return &OutOfBoundsError{Op: "seek", Pos: position, Len: len(b.data)}
	}
	b.pos = position
	return nil
}

// Reset moves the cursor back to zero without touching the storage.
func (b *Buffer) Reset() { b.pos = 0 }

// ZeroFill sets every storage byte to value.
func (b *Buffer) ZeroFill(value byte) {
	for i := range b.data {
		b.data[i] = value
	}
}

// Clone returns a deep copy of the storage and cursor.
func (b *Buffer) Clone() *Buffer {
	c := &Buffer{
		alignment: b.alignment,
		pos:       b.pos,
	}
	if b.data != nil {
		c.data = make([]byte, len(b.data))
		copy(c.data, b.data)
	}
	return c
}

// BlockCopy copies count bytes from b at srcOffset into dst at dstOffset.
// Cursors are left untouched.
func (b *Buffer) BlockCopy(dst *Buffer, srcOffset, dstOffset, count int) error {
	if count < 0 || srcOffset < 0 || srcOffset+count > len(b.data) {
		return &OutOfBoundsError{Op: "block copy", Pos: srcOffset, Size: count, Len: len(b.data)}
	}
	if dstOffset < 0 || dstOffset+count > len(dst.data) {
		return &OutOfBoundsError{Op: "block copy", Pos: dstOffset, Size: count, Len: len(dst.data)}
	}
	copy(dst.data[dstOffset:dstOffset+count], b.data[srcOffset:srcOffset+count])
	return nil
}

// BlockCopyAt copies count bytes at the same offset in both buffers.
func (b *Buffer) BlockCopyAt(dst *Buffer, offset, count int) error {
	return b.BlockCopy(dst, offset, offset, count)
}

// CopyTo copies as many bytes as both storages hold and returns the count.
func (b *Buffer) CopyTo(dst *Buffer) int {
	return copy(dst.data, b.data)
}

// fits reports whether size bytes starting at the cursor stay in storage.
func (b *Buffer) fits(size int) bool {
	return size >= 0 && b.pos+size <= len(b.data)
}

// advance moves the cursor past size bytes and aligns it. Storage length is
// a multiple of the alignment, so a value that fits never pushes the
// aligned cursor past the end.
func (b *Buffer) advance(size int) {
	b.pos = AlignedPosition(b.pos+size, b.alignment)
}

func (b *Buffer) errBounds(op string, size int) error {
	return &OutOfBoundsError{Op: op, Pos: b.pos, Size: size, Len: len(b.data)}
}
