package protocol

import (
	"fmt"
	"time"

	"github.com/skshohagmiah/sockit/pkg/buffer"
)

// EncodeSetRequest encodes a SET. A positive ttl is sent in whole seconds,
// rounded up.
func EncodeSetRequest(key string, value []byte, ttl time.Duration) (*buffer.Buffer, error) {
	return EncodeRequest(&Request{Op: OpSet, Key: key, Value: value, TTL: ttl})
}

func EncodeGetRequest(key string) (*buffer.Buffer, error) {
	return EncodeRequest(&Request{Op: OpGet, Key: key})
}

func EncodeDeleteRequest(key string) (*buffer.Buffer, error) {
	return EncodeRequest(&Request{Op: OpDel, Key: key})
}

func EncodeExistsRequest(key string) (*buffer.Buffer, error) {
	return EncodeRequest(&Request{Op: OpExists, Key: key})
}

func EncodeIncrRequest(key string) (*buffer.Buffer, error) {
	return EncodeRequest(&Request{Op: OpIncr, Key: key})
}

func EncodeDecrRequest(key string) (*buffer.Buffer, error) {
	return EncodeRequest(&Request{Op: OpDecr, Key: key})
}

// EncodeMSetRequest encodes a batch SET. keys and values pair up by index.
func EncodeMSetRequest(keys []string, values [][]byte) (*buffer.Buffer, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("%w: %d keys, %d values", ErrBatchSize, len(keys), len(values))
	}
	return EncodeRequest(&Request{Op: OpMSet, Keys: keys, Values: values})
}

func EncodeMGetRequest(keys []string) (*buffer.Buffer, error) {
	return EncodeRequest(&Request{Op: OpMGet, Keys: keys})
}

func EncodeMDeleteRequest(keys []string) (*buffer.Buffer, error) {
	return EncodeRequest(&Request{Op: OpMDel, Keys: keys})
}

// EncodeRequest validates req and encodes it into a frame whose cursor sits
// at the end, ready to send.
func EncodeRequest(req *Request) (*buffer.Buffer, error) {
	var size payloadSize

	switch req.Op {
	case OpSet:
		if err := validKey(req.Key); err != nil {
			return nil, err
		}
		size.str(req.Key)
		size.field(buffer.SizeInt32)
		size.blob(req.Value)
		return encodeFrame(uint8(req.Op), size, func(b *buffer.Buffer) error {
			if err := b.WriteString(req.Key); err != nil {
				return err
			}
			if err := b.WriteUint32(ttlSeconds(req.TTL)); err != nil {
				return err
			}
			return writeBlob(b, req.Value)
		})

	case OpGet, OpDel, OpExists, OpIncr, OpDecr:
		if err := validKey(req.Key); err != nil {
			return nil, err
		}
		size.str(req.Key)
		return encodeFrame(uint8(req.Op), size, func(b *buffer.Buffer) error {
			return b.WriteString(req.Key)
		})

	case OpMSet:
		if err := validBatch(len(req.Keys)); err != nil {
			return nil, err
		}
		if len(req.Values) != len(req.Keys) {
			return nil, fmt.Errorf("%w: %d keys, %d values", ErrBatchSize, len(req.Keys), len(req.Values))
		}
		size.field(buffer.SizeInt32)
		for i, key := range req.Keys {
			if err := validKey(key); err != nil {
				return nil, err
			}
			size.str(key)
			size.blob(req.Values[i])
		}
		return encodeFrame(uint8(req.Op), size, func(b *buffer.Buffer) error {
			if err := b.WriteUint32(uint32(len(req.Keys))); err != nil {
				return err
			}
			for i, key := range req.Keys {
				if err := b.WriteString(key); err != nil {
					return err
				}
				if err := writeBlob(b, req.Values[i]); err != nil {
					return err
				}
			}
			return nil
		})

	case OpMGet, OpMDel:
		if err := validBatch(len(req.Keys)); err != nil {
			return nil, err
		}
		size.field(buffer.SizeInt32)
		for _, key := range req.Keys {
			if err := validKey(key); err != nil {
				return nil, err
			}
			size.str(key)
		}
		return encodeFrame(uint8(req.Op), size, func(b *buffer.Buffer) error {
			if err := b.WriteUint32(uint32(len(req.Keys))); err != nil {
				return err
			}
			for _, key := range req.Keys {
				if err := b.WriteString(key); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOp, req.Op)
}

func ttlSeconds(ttl time.Duration) uint32 {
	if ttl <= 0 {
		return 0
	}
	return uint32((ttl + time.Second - 1) / time.Second)
}

// DecodeRequest decodes the frame at the start of data. It returns
// ErrIncomplete when data holds less than one frame.
func DecodeRequest(data []byte) (*Request, error) {
	b, code, err := openFrame(data)
	if err != nil {
		return nil, err
	}

	req := &Request{Op: Op(code)}
	switch req.Op {
	case OpSet:
		if req.Key, err = readKey(b); err != nil {
			return nil, err
		}
		ttl, ok := b.TryReadUint32()
		if !ok {
			return nil, ErrMalformed
		}
		req.TTL = time.Duration(ttl) * time.Second
		if req.Value, err = readBlob(b); err != nil {
			return nil, err
		}

	case OpGet, OpDel, OpExists, OpIncr, OpDecr:
		if req.Key, err = readKey(b); err != nil {
			return nil, err
		}

	case OpMSet:
		n, err := readCount(b)
		if err != nil {
			return nil, err
		}
		req.Keys = make([]string, 0, n)
		req.Values = make([][]byte, 0, n)
		for i := 0; i < n; i++ {
			key, err := readKey(b)
			if err != nil {
				return nil, err
			}
			value, err := readBlob(b)
			if err != nil {
				return nil, err
			}
			req.Keys = append(req.Keys, key)
			req.Values = append(req.Values, value)
		}

	case OpMGet, OpMDel:
		n, err := readCount(b)
		if err != nil {
			return nil, err
		}
		req.Keys = make([]string, 0, n)
		for i := 0; i < n; i++ {
			key, err := readKey(b)
			if err != nil {
				return nil, err
			}
			req.Keys = append(req.Keys, key)
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOp, req.Op)
	}
	return req, nil
}
