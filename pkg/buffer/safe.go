package buffer

// Safe variants. They perform the operation only when it fits in the
// remaining storage and otherwise leave the buffer untouched. Use them for
// anything decoded from the network.

func tryRead[T any](read func() (T, error)) (T, bool) {
	v, err := read()
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

func (b *Buffer) TryWriteBool(v bool) bool       { return b.WriteBool(v) == nil }
func (b *Buffer) TryWriteInt8(v int8) bool       { return b.WriteInt8(v) == nil }
func (b *Buffer) TryWriteUint8(v uint8) bool     { return b.WriteUint8(v) == nil }
func (b *Buffer) TryWriteInt16(v int16) bool     { return b.WriteInt16(v) == nil }
func (b *Buffer) TryWriteUint16(v uint16) bool   { return b.WriteUint16(v) == nil }
func (b *Buffer) TryWriteInt32(v int32) bool     { return b.WriteInt32(v) == nil }
func (b *Buffer) TryWriteUint32(v uint32) bool   { return b.WriteUint32(v) == nil }
func (b *Buffer) TryWriteInt64(v int64) bool     { return b.WriteInt64(v) == nil }
func (b *Buffer) TryWriteUint64(v uint64) bool   { return b.WriteUint64(v) == nil }
func (b *Buffer) TryWriteFloat32(v float32) bool { return b.WriteFloat32(v) == nil }
func (b *Buffer) TryWriteFloat64(v float64) bool { return b.WriteFloat64(v) == nil }
func (b *Buffer) TryWriteString(s string) bool   { return b.WriteString(s) == nil }
func (b *Buffer) TryWriteBytes(v []byte) bool    { return b.WriteBytes(v) == nil }

func (b *Buffer) TryReadBool() (bool, bool)       { return tryRead(b.ReadBool) }
func (b *Buffer) TryReadInt8() (int8, bool)       { return tryRead(b.ReadInt8) }
func (b *Buffer) TryReadUint8() (uint8, bool)     { return tryRead(b.ReadUint8) }
func (b *Buffer) TryReadInt16() (int16, bool)     { return tryRead(b.ReadInt16) }
func (b *Buffer) TryReadUint16() (uint16, bool)   { return tryRead(b.ReadUint16) }
func (b *Buffer) TryReadInt32() (int32, bool)     { return tryRead(b.ReadInt32) }
func (b *Buffer) TryReadUint32() (uint32, bool)   { return tryRead(b.ReadUint32) }
func (b *Buffer) TryReadInt64() (int64, bool)     { return tryRead(b.ReadInt64) }
func (b *Buffer) TryReadUint64() (uint64, bool)   { return tryRead(b.ReadUint64) }
func (b *Buffer) TryReadFloat32() (float32, bool) { return tryRead(b.ReadFloat32) }
func (b *Buffer) TryReadFloat64() (float64, bool) { return tryRead(b.ReadFloat64) }
func (b *Buffer) TryReadString() (string, bool)   { return tryRead(b.ReadString) }

// TryReadBytes returns nil, false when fewer than length bytes remain.
func (b *Buffer) TryReadBytes(length int) ([]byte, bool) {
	return tryRead(func() ([]byte, error) { return b.ReadBytes(length) })
}
