package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skshohagmiah/sockit/pkg/buffer"
)

// Binary protocol on the aligned codec. Every field starts on a 4 byte
// boundary and integers are little-endian.
//
// Frame:
//
//	[uint8 code][uint32 payload length][payload]
//
// code is an Op for requests and a Status for responses. The payload length
// counts the padded payload bytes after the 8 byte header.
//
// Request payloads:
//
//	SET:                     [string key][uint32 ttl seconds][uint32 len][value]
//	GET, DEL, EXISTS, INCR,
//	DECR:                    [string key]
//	MSET:                    [uint32 count] count x [string key][uint32 len][value]
//	MGET, MDEL:              [uint32 count] count x [string key]
//
// Response payloads:
//
//	OK, NOT_FOUND:           empty
//	VALUE:                   [uint32 len][value]
//	INT:                     [int64 n]
//	ERROR:                   [string message]
//	MULTI:                   [uint32 count] count x [bool found][uint32 len][value]
//
// Strings are null-terminated, so keys must not contain a zero byte.

// Op identifies a request.
type Op uint8

const (
	OpSet    Op = 0x01
	OpGet    Op = 0x02
	OpDel    Op = 0x03
	OpExists Op = 0x04
	OpIncr   Op = 0x05
	OpDecr   Op = 0x06
	OpMSet   Op = 0x10
	OpMGet   Op = 0x11
	OpMDel   Op = 0x12
)

func (op Op) String() string {
	switch op {
	case OpSet:
		return "SET"
	case OpGet:
		return "GET"
	case OpDel:
		return "DEL"
	case OpExists:
		return "EXISTS"
	case OpIncr:
		return "INCR"
	case OpDecr:
		return "DECR"
	case OpMSet:
		return "MSET"
	case OpMGet:
		return "MGET"
	case OpMDel:
		return "MDEL"
	}
	return fmt.Sprintf("Op(0x%02x)", uint8(op))
}

// Status identifies a response.
type Status uint8

const (
	StatusOK       Status = 0x00
	StatusError    Status = 0x01
	StatusNotFound Status = 0x02
	StatusMulti    Status = 0x03
	StatusValue    Status = 0x04
	StatusInt      Status = 0x05
)

const (
	// Alignment of every field in a frame.
	Alignment  = 4
	HeaderSize = 8

	MaxKeyLen    = 65535
	MaxValueLen  = 1 << 30
	MaxBatchSize = 10000
	MaxFrameSize = MaxValueLen + 1<<20
)

var (
	ErrIncomplete    = errors.New("protocol: incomplete frame")
	ErrMalformed     = errors.New("protocol: malformed frame")
	ErrUnknownOp     = errors.New("protocol: unknown op")
	ErrUnknownStatus = errors.New("protocol: unknown status")
	ErrInvalidKey    = errors.New("protocol: invalid key")
	ErrBatchSize     = errors.New("protocol: batch size out of range")
)

// Request is a decoded request frame.
type Request struct {
	Op     Op
	Key    string
	Value  []byte
	TTL    time.Duration
	Keys   []string
	Values [][]byte
}

// Response is a decoded response frame. Values holds nil for keys a MULTI
// response reports as missing.
type Response struct {
	Status Status
	Value  []byte
	Int    int64
	Values [][]byte
	Error  string
}

// payloadSize accumulates the padded size of payload fields.
type payloadSize int

func (n *payloadSize) field(size int) {
	*n += payloadSize(buffer.AlignedPosition(size, Alignment))
}

func (n *payloadSize) str(s string) { n.field(buffer.StringSize(s)) }

func (n *payloadSize) blob(v []byte) {
	n.field(buffer.SizeInt32)
	n.field(len(v))
}

func writeBlob(b *buffer.Buffer, v []byte) error {
	if err := b.WriteUint32(uint32(len(v))); err != nil {
		return err
	}
	return b.WriteBytes(v)
}

// encodeFrame allocates a frame for a payload of the given size, writes the
// header and lets fill write the payload.
func encodeFrame(code uint8, size payloadSize, fill func(b *buffer.Buffer) error) (*buffer.Buffer, error) {
	if int(size) > MaxFrameSize-HeaderSize {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrMalformed, size)
	}
	b, err := buffer.New(HeaderSize+int(size), Alignment)
	if err != nil {
		return nil, err
	}
	if err := b.WriteUint8(code); err != nil {
		return nil, err
	}
	if err := b.WriteUint32(uint32(size)); err != nil {
		return nil, err
	}
	if fill != nil {
		if err := fill(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func validKey(key string) error {
	if key == "" || len(key) > MaxKeyLen || strings.IndexByte(key, 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func validBatch(n int) error {
	if n == 0 || n > MaxBatchSize {
		return fmt.Errorf("%w: %d", ErrBatchSize, n)
	}
	return nil
}

// FrameSize returns the total size of the frame at the start of data. It
// needs only the header.
func FrameSize(data []byte) (int, error) {
	if len(data) < HeaderSize {
		return 0, ErrIncomplete
	}
	hdr, err := buffer.Wrap(data[:HeaderSize], Alignment)
	if err != nil {
		return 0, err
	}
	if _, ok := hdr.TryReadUint8(); !ok {
		return 0, ErrMalformed
	}
	size, ok := hdr.TryReadUint32()
	if !ok || size%Alignment != 0 || int64(size) > MaxFrameSize-HeaderSize {
		return 0, fmt.Errorf("%w: payload length %d", ErrMalformed, size)
	}
	return HeaderSize + int(size), nil
}

// openFrame checks that data holds one whole frame and returns a buffer
// positioned at its payload together with the header code.
func openFrame(data []byte) (*buffer.Buffer, uint8, error) {
	size, err := FrameSize(data)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < size {
		return nil, 0, ErrIncomplete
	}
	b, err := buffer.Wrap(data[:size], Alignment)
	if err != nil {
		return nil, 0, err
	}
	code, _ := b.TryReadUint8()
	_, _ = b.TryReadUint32()
	return b, code, nil
}

// Payload fields come from the network, so decoding sticks to the Try
// reads and reports any shortfall as ErrMalformed.

func readKey(b *buffer.Buffer) (string, error) {
	key, ok := b.TryReadString()
	if !ok {
		return "", ErrMalformed
	}
	if err := validKey(key); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return key, nil
}

func readBlob(b *buffer.Buffer) ([]byte, error) {
	n, ok := b.TryReadUint32()
	if !ok || n > MaxValueLen || int(n) > b.Remaining() {
		return nil, ErrMalformed
	}
	v, ok := b.TryReadBytes(int(n))
	if !ok {
		return nil, ErrMalformed
	}
	return v, nil
}

func readCount(b *buffer.Buffer) (int, error) {
	n, ok := b.TryReadUint32()
	if !ok {
		return 0, ErrMalformed
	}
	// every entry takes at least one aligned field
	if n > MaxBatchSize || int(n)*Alignment > b.Remaining() {
		return 0, fmt.Errorf("%w: count %d", ErrMalformed, n)
	}
	return int(n), nil
}
