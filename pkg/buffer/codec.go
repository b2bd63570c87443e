package buffer

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Sizes of the fixed-width primitives.
const (
	SizeBool    = 1
	SizeInt8    = 1
	SizeInt16   = 2
	SizeInt32   = 4
	SizeInt64   = 8
	SizeFloat32 = 4
	SizeFloat64 = 8
)

var le = binary.LittleEndian

// step hands the size bytes at the cursor to fn and advances. Nothing is
// touched when the bytes do not fit.
func (b *Buffer) step(op string, size int, fn func(p []byte)) error {
	if !b.fits(size) {
		return b.errBounds(op, size)
	}
	fn(b.data[b.pos : b.pos+size])
	b.advance(size)
	return nil
}

// Writes

func (b *Buffer) WriteBool(v bool) error {
	return b.step("write bool", SizeBool, func(p []byte) {
		if v {
			p[0] = 1
		} else {
			p[0] = 0
		}
	})
}

func (b *Buffer) WriteInt8(v int8) error {
	return b.step("write int8", SizeInt8, func(p []byte) { p[0] = byte(v) })
}

func (b *Buffer) WriteUint8(v uint8) error {
	return b.step("write uint8", SizeInt8, func(p []byte) { p[0] = v })
}

func (b *Buffer) WriteInt16(v int16) error {
	return b.step("write int16", SizeInt16, func(p []byte) { le.PutUint16(p, uint16(v)) })
}

func (b *Buffer) WriteUint16(v uint16) error {
	return b.step("write uint16", SizeInt16, func(p []byte) { le.PutUint16(p, v) })
}

func (b *Buffer) WriteInt32(v int32) error {
	return b.step("write int32", SizeInt32, func(p []byte) { le.PutUint32(p, uint32(v)) })
}

func (b *Buffer) WriteUint32(v uint32) error {
	return b.step("write uint32", SizeInt32, func(p []byte) { le.PutUint32(p, v) })
}

func (b *Buffer) WriteInt64(v int64) error {
	return b.step("write int64", SizeInt64, func(p []byte) { le.PutUint64(p, uint64(v)) })
}

func (b *Buffer) WriteUint64(v uint64) error {
	return b.step("write uint64", SizeInt64, func(p []byte) { le.PutUint64(p, v) })
}

func (b *Buffer) WriteFloat32(v float32) error {
	return b.step("write float32", SizeFloat32, func(p []byte) { le.PutUint32(p, math.Float32bits(v)) })
}

func (b *Buffer) WriteFloat64(v float64) error {
	return b.step("write float64", SizeFloat64, func(p []byte) { le.PutUint64(p, math.Float64bits(v)) })
}

// WriteString writes s as ASCII followed by a zero terminator, then aligns.
func (b *Buffer) WriteString(s string) error {
	return b.step("write string", StringSize(s), func(p []byte) {
		n := copy(p, s)
		p[n] = 0
	})
}

// WriteBytes writes raw bytes with no length prefix.
func (b *Buffer) WriteBytes(v []byte) error {
	return b.step("write bytes", len(v), func(p []byte) { copy(p, v) })
}

// StringSize is the encoded size of s including its terminator.
func StringSize(s string) int {
	return len(s) + 1
}

// Reads

func (b *Buffer) ReadBool() (v bool, err error) {
	err = b.step("read bool", SizeBool, func(p []byte) { v = p[0] != 0 })
	return
}

func (b *Buffer) ReadInt8() (v int8, err error) {
	err = b.step("read int8", SizeInt8, func(p []byte) { v = int8(p[0]) })
	return
}

func (b *Buffer) ReadUint8() (v uint8, err error) {
	err = b.step("read uint8", SizeInt8, func(p []byte) { v = p[0] })
	return
}

func (b *Buffer) ReadInt16() (v int16, err error) {
	err = b.step("read int16", SizeInt16, func(p []byte) { v = int16(le.Uint16(p)) })
	return
}

func (b *Buffer) ReadUint16() (v uint16, err error) {
	err = b.step("read uint16", SizeInt16, func(p []byte) { v = le.Uint16(p) })
	return
}

func (b *Buffer) ReadInt32() (v int32, err error) {
	err = b.step("read int32", SizeInt32, func(p []byte) { v = int32(le.Uint32(p)) })
	return
}

func (b *Buffer) ReadUint32() (v uint32, err error) {
	err = b.step("read uint32", SizeInt32, func(p []byte) { v = le.Uint32(p) })
	return
}

func (b *Buffer) ReadInt64() (v int64, err error) {
	err = b.step("read int64", SizeInt64, func(p []byte) { v = int64(le.Uint64(p)) })
	return
}

func (b *Buffer) ReadUint64() (v uint64, err error) {
	err = b.step("read uint64", SizeInt64, func(p []byte) { v = le.Uint64(p) })
	return
}

func (b *Buffer) ReadFloat32() (v float32, err error) {
	err = b.step("read float32", SizeFloat32, func(p []byte) { v = math.Float32frombits(le.Uint32(p)) })
	return
}

func (b *Buffer) ReadFloat64() (v float64, err error) {
	err = b.step("read float64", SizeFloat64, func(p []byte) { v = math.Float64frombits(le.Uint64(p)) })
	return
}

// ReadString reads up to the first zero byte or the end of storage. The
// cursor moves past the terminator when there is one.
func (b *Buffer) ReadString() (string, error) {
	if b.pos > len(b.data) || b.pos < 0 {
		return "", b.errBounds("read string", 1)
	}
	rest := b.data[b.pos:]
	n := bytes.IndexByte(rest, 0)
	size := n + 1
	if n < 0 {
		n, size = len(rest), len(rest)
	}
	s := string(rest[:n])
	b.advance(size)
	return s, nil
}

// ReadBytes reads exactly length raw bytes into a fresh slice.
func (b *Buffer) ReadBytes(length int) (v []byte, err error) {
	err = b.step("read bytes", length, func(p []byte) {
		v = make([]byte, length)
		copy(v, p)
	})
	return
}
