package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skshohagmiah/sockit/pkg/buffer"
)

// frameOf takes an encoder's results and returns the frame bytes.
func frameOf(t *testing.T) func(*buffer.Buffer, error) []byte {
	return func(b *buffer.Buffer, err error) []byte {
		t.Helper()
		require.NoError(t, err)
		assert.Equal(t, b.Len(), b.Pos(), "frame is fully written")
		return b.Bytes()
	}
}

func TestSetRequestLayout(t *testing.T) {
	data := frameOf(t)(EncodeSetRequest("ab", []byte{9, 8, 7}, 1500*time.Millisecond))

	want := []byte{
		0x01, 0, 0, 0, // op + padding
		16, 0, 0, 0, // payload length
		'a', 'b', 0, 0, // key + terminator + padding
		2, 0, 0, 0, // ttl seconds, rounded up
		3, 0, 0, 0, // value length
		9, 8, 7, 0, // value + padding
	}
	assert.Equal(t, want, data)

	size, err := FrameSize(data)
	require.NoError(t, err)
	assert.Equal(t, len(want), size)
}

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
	}{
		{"set", &Request{Op: OpSet, Key: "user:1", Value: []byte("ada lovelace"), TTL: 10 * time.Second}},
		{"set empty value", &Request{Op: OpSet, Key: "k", Value: []byte{}}},
		{"get", &Request{Op: OpGet, Key: "user:1"}},
		{"del", &Request{Op: OpDel, Key: "user:1"}},
		{"exists", &Request{Op: OpExists, Key: "abcd"}},
		{"incr", &Request{Op: OpIncr, Key: "hits"}},
		{"decr", &Request{Op: OpDecr, Key: "hits"}},
		{"mset", &Request{Op: OpMSet, Keys: []string{"a", "bb", "ccc"}, Values: [][]byte{{1}, {}, []byte("three")}}},
		{"mget", &Request{Op: OpMGet, Keys: []string{"a", "bb"}}},
		{"mdel", &Request{Op: OpMDel, Keys: []string{"a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := frameOf(t)(EncodeRequest(tt.req))
			assert.Zero(t, len(data)%Alignment)

			got, err := DecodeRequest(data)
			require.NoError(t, err)
			assert.Equal(t, tt.req.Op, got.Op)
			assert.Equal(t, tt.req.Key, got.Key)
			assert.Equal(t, tt.req.TTL, got.TTL)
			assert.Equal(t, tt.req.Keys, got.Keys)
			if tt.req.Value != nil {
				assert.Equal(t, tt.req.Value, got.Value)
			}
			if tt.req.Values != nil {
				assert.Equal(t, tt.req.Values, got.Values)
			}
		})
	}
}

func TestEncodeRequestValidation(t *testing.T) {
	_, err := EncodeGetRequest("")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = EncodeGetRequest("a\x00b")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = EncodeMGetRequest(nil)
	assert.ErrorIs(t, err, ErrBatchSize)

	_, err = EncodeMSetRequest([]string{"a"}, nil)
	assert.ErrorIs(t, err, ErrBatchSize)

	_, err = EncodeRequest(&Request{Op: 0x7F, Key: "k"})
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestResponseRoundTrip(t *testing.T) {
	ok, err := DecodeResponse(frameOf(t)(EncodeOKResponse()))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, ok.Status)
	assert.NoError(t, ok.Err())

	nf, err := DecodeResponse(frameOf(t)(EncodeNotFoundResponse()))
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, nf.Status)

	val, err := DecodeResponse(frameOf(t)(EncodeValueResponse([]byte("hello"))))
	require.NoError(t, err)
	assert.Equal(t, StatusValue, val.Status)
	assert.Equal(t, []byte("hello"), val.Value)

	n, err := DecodeResponse(frameOf(t)(EncodeIntResponse(-42)))
	require.NoError(t, err)
	assert.Equal(t, StatusInt, n.Status)
	assert.Equal(t, int64(-42), n.Int)

	multi, err := DecodeResponse(frameOf(t)(EncodeMultiValueResponse([][]byte{[]byte("a"), nil, {}})))
	require.NoError(t, err)
	assert.Equal(t, StatusMulti, multi.Status)
	require.Len(t, multi.Values, 3)
	assert.Equal(t, []byte("a"), multi.Values[0])
	assert.Nil(t, multi.Values[1])
	assert.NotNil(t, multi.Values[2])
	assert.Empty(t, multi.Values[2])

	failed, err := DecodeResponse(frameOf(t)(EncodeErrorResponse(errors.New("boom\x00bang"))))
	require.NoError(t, err)
	assert.Equal(t, "boom bang", failed.Error)
	var remote *RemoteError
	require.ErrorAs(t, failed.Err(), &remote)
	assert.Equal(t, "boom bang", remote.Message)
}

func TestDecodeIncomplete(t *testing.T) {
	data := frameOf(t)(EncodeGetRequest("some-key"))

	for _, n := range []int{0, 3, HeaderSize, len(data) - 1} {
		_, err := DecodeRequest(data[:n])
		assert.ErrorIs(t, err, ErrIncomplete, "prefix of %d bytes", n)
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Run("unaligned payload length", func(t *testing.T) {
		_, err := FrameSize([]byte{0x02, 0, 0, 0, 3, 0, 0, 0})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("oversized payload length", func(t *testing.T) {
		_, err := FrameSize([]byte{0x02, 0, 0, 0, 0xFC, 0xFF, 0xFF, 0xFF})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("value length past frame", func(t *testing.T) {
		data := frameOf(t)(EncodeSetRequest("k", []byte("v"), 0))
		data[16] = 0xFF // value length
		_, err := DecodeRequest(data)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("empty key", func(t *testing.T) {
		data := []byte{0x02, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 0}
		_, err := DecodeRequest(data)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("batch count past frame", func(t *testing.T) {
		data := []byte{0x11, 0, 0, 0, 4, 0, 0, 0, 0x10, 0, 0, 0}
		_, err := DecodeRequest(data)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("unknown op", func(t *testing.T) {
		_, err := DecodeRequest([]byte{0x7F, 0, 0, 0, 0, 0, 0, 0})
		assert.ErrorIs(t, err, ErrUnknownOp)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := DecodeResponse([]byte{0x7F, 0, 0, 0, 0, 0, 0, 0})
		assert.ErrorIs(t, err, ErrUnknownStatus)
	})
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "MSET", OpMSet.String())
	assert.Equal(t, "Op(0x7f)", Op(0x7F).String())
}
