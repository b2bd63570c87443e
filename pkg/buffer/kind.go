package buffer

import "fmt"

// Kind names a primitive the codec knows how to encode.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindBytes
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindInt8:    "int8",
	KindUint8:   "uint8",
	KindInt16:   "int16",
	KindUint16:  "uint16",
	KindInt32:   "int32",
	KindUint32:  "uint32",
	KindInt64:   "int64",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindString:  "string",
	KindBytes:   "bytes",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Size returns the fixed encoded size of k, or 0 for variable-length kinds.
func (k Kind) Size() int {
	switch k {
	case KindBool, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	}
	return 0
}

// KindOf reports the Kind of a Go value, or KindInvalid.
func KindOf(v any) Kind {
	switch v.(type) {
	case bool:
		return KindBool
	case int8:
		return KindInt8
	case uint8:
		return KindUint8
	case int16:
		return KindInt16
	case uint16:
		return KindUint16
	case int32:
		return KindInt32
	case uint32:
		return KindUint32
	case int64:
		return KindInt64
	case uint64:
		return KindUint64
	case float32:
		return KindFloat32
	case float64:
		return KindFloat64
	case string:
		return KindString
	case []byte:
		return KindBytes
	}
	return KindInvalid
}

// WriteValue writes v according to its dynamic type.
func (b *Buffer) WriteValue(v any) error {
	switch x := v.(type) {
	case bool:
		return b.WriteBool(x)
	case int8:
		return b.WriteInt8(x)
	case uint8:
		return b.WriteUint8(x)
	case int16:
		return b.WriteInt16(x)
	case uint16:
		return b.WriteUint16(x)
	case int32:
		return b.WriteInt32(x)
	case uint32:
		return b.WriteUint32(x)
	case int64:
		return b.WriteInt64(x)
	case uint64:
		return b.WriteUint64(x)
	case float32:
		return b.WriteFloat32(x)
	case float64:
		return b.WriteFloat64(x)
	case string:
		return b.WriteString(x)
	case []byte:
		return b.WriteBytes(x)
	}
	return fmt.Errorf("buffer: unsupported type %T", v)
}

// ReadKind reads one value of the given kind. length is only used by
// KindBytes.
func (b *Buffer) ReadKind(kind Kind, length int) (any, error) {
	switch kind {
	case KindBool:
		return b.ReadBool()
	case KindInt8:
		return b.ReadInt8()
	case KindUint8:
		return b.ReadUint8()
	case KindInt16:
		return b.ReadInt16()
	case KindUint16:
		return b.ReadUint16()
	case KindInt32:
		return b.ReadInt32()
	case KindUint32:
		return b.ReadUint32()
	case KindInt64:
		return b.ReadInt64()
	case KindUint64:
		return b.ReadUint64()
	case KindFloat32:
		return b.ReadFloat32()
	case KindFloat64:
		return b.ReadFloat64()
	case KindString:
		return b.ReadString()
	case KindBytes:
		return b.ReadBytes(length)
	}
	return nil, fmt.Errorf("buffer: unsupported kind %s", kind)
}

// TryReadKind is the safe form of ReadKind.
func (b *Buffer) TryReadKind(kind Kind, length int) (any, bool) {
	v, err := b.ReadKind(kind, length)
	if err != nil {
		return nil, false
	}
	return v, true
}
