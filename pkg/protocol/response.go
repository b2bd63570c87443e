package protocol

import (
	"fmt"

	"github.com/skshohagmiah/sockit/pkg/buffer"
)

func EncodeOKResponse() (*buffer.Buffer, error) {
	return encodeFrame(uint8(StatusOK), 0, nil)
}

func EncodeNotFoundResponse() (*buffer.Buffer, error) {
	return encodeFrame(uint8(StatusNotFound), 0, nil)
}

func EncodeValueResponse(value []byte) (*buffer.Buffer, error) {
	var size payloadSize
	size.blob(value)
	return encodeFrame(uint8(StatusValue), size, func(b *buffer.Buffer) error {
		return writeBlob(b, value)
	})
}

func EncodeIntResponse(n int64) (*buffer.Buffer, error) {
	var size payloadSize
	size.field(buffer.SizeInt64)
	return encodeFrame(uint8(StatusInt), size, func(b *buffer.Buffer) error {
		return b.WriteInt64(n)
	})
}

// EncodeMultiValueResponse encodes one entry per value. A nil value is sent
// as not found.
func EncodeMultiValueResponse(values [][]byte) (*buffer.Buffer, error) {
	var size payloadSize
	size.field(buffer.SizeInt32)
	for _, v := range values {
		size.field(buffer.SizeBool)
		size.blob(v)
	}
	return encodeFrame(uint8(StatusMulti), size, func(b *buffer.Buffer) error {
		if err := b.WriteUint32(uint32(len(values))); err != nil {
			return err
		}
		for _, v := range values {
			if err := b.WriteBool(v != nil); err != nil {
				return err
			}
			if err := writeBlob(b, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// EncodeErrorResponse sends err's message. Zero bytes are replaced so the
// message survives as one string.
func EncodeErrorResponse(err error) (*buffer.Buffer, error) {
	msg := sanitize(err.Error())
	var size payloadSize
	size.str(msg)
	return encodeFrame(uint8(StatusError), size, func(b *buffer.Buffer) error {
		return b.WriteString(msg)
	})
}

func sanitize(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c == 0 {
			out[i] = ' '
		}
	}
	return string(out)
}

// DecodeResponse decodes the frame at the start of data. It returns
// ErrIncomplete when data holds less than one frame.
func DecodeResponse(data []byte) (*Response, error) {
	b, code, err := openFrame(data)
	if err != nil {
		return nil, err
	}

	resp := &Response{Status: Status(code)}
	switch resp.Status {
	case StatusOK, StatusNotFound:

	case StatusValue:
		if resp.Value, err = readBlob(b); err != nil {
			return nil, err
		}

	case StatusInt:
		n, ok := b.TryReadInt64()
		if !ok {
			return nil, ErrMalformed
		}
		resp.Int = n

	case StatusError:
		msg, ok := b.TryReadString()
		if !ok {
			return nil, ErrMalformed
		}
		resp.Error = msg

	case StatusMulti:
		n, err := readCount(b)
		if err != nil {
			return nil, err
		}
		resp.Values = make([][]byte, n)
		for i := 0; i < n; i++ {
			found, ok := b.TryReadBool()
			if !ok {
				return nil, ErrMalformed
			}
			v, err := readBlob(b)
			if err != nil {
				return nil, err
			}
			if found {
				resp.Values[i] = v
			}
		}

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownStatus, code)
	}
	return resp, nil
}

// Err turns an error response into an error value.
func (r *Response) Err() error {
	if r.Status != StatusError {
		return nil
	}
	return &RemoteError{Message: r.Error}
}

// RemoteError is a failure reported by the server.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "remote: " + e.Message }
