// Package buffer implements a packed, alignment-aware binary codec.
//
// A Buffer holds fixed-capacity storage and a cursor. Typed writes and
// reads are little-endian and each one leaves the cursor on the next
// multiple of the buffer alignment:
//
//	b := buffer.MustNew(8, 4)
//	_ = b.WriteInt32(5) // cursor 4
//	_ = b.WriteUint8(1) // cursor 8, storage 05 00 00 00 01 00 00 00
//
// Unchecked operations return an *OutOfBoundsError when the value does not
// fit. The Try* variants never fail; they are the path for untrusted input.
package buffer
