package server

import (
	"errors"

	"github.com/skshohagmiah/sockit/internal/kv"
	"github.com/skshohagmiah/sockit/pkg/buffer"
	"github.com/skshohagmiah/sockit/pkg/protocol"
)

// handle runs one request against the store and encodes the reply.
func (s *Service) handle(req *protocol.Request) *buffer.Buffer {
	resp, err := s.dispatch(req)
	if err != nil {
		s.opsErrors.Add(1)
		return errorResponse(err)
	}
	s.opsProcessed.Add(1)
	return resp
}

func (s *Service) dispatch(req *protocol.Request) (*buffer.Buffer, error) {
	switch req.Op {
	case protocol.OpSet:
		if err := s.store.Set(req.Key, req.Value, req.TTL); err != nil {
			return nil, err
		}
		return protocol.EncodeOKResponse()

	case protocol.OpGet:
		val, err := s.store.Get(req.Key)
		if errors.Is(err, kv.ErrKeyNotFound) {
			return protocol.EncodeNotFoundResponse()
		}
		if err != nil {
			return nil, err
		}
		return protocol.EncodeValueResponse(val)

	case protocol.OpDel:
		if err := s.store.Delete(req.Key); err != nil {
			return nil, err
		}
		return protocol.EncodeOKResponse()

	case protocol.OpExists:
		ok, err := s.store.Exists(req.Key)
		if err != nil {
			return nil, err
		}
		var n int64
		if ok {
			n = 1
		}
		return protocol.EncodeIntResponse(n)

	case protocol.OpIncr, protocol.OpDecr:
		delta := int64(1)
		if req.Op == protocol.OpDecr {
			delta = -1
		}
		n, err := s.store.Incr(req.Key, delta)
		if err != nil {
			return nil, err
		}
		return protocol.EncodeIntResponse(n)

	case protocol.OpMSet:
		pairs := make(map[string][]byte, len(req.Keys))
		for i, key := range req.Keys {
			pairs[key] = req.Values[i]
		}
		if err := s.store.BatchSet(pairs, 0); err != nil {
			return nil, err
		}
		return protocol.EncodeOKResponse()

	case protocol.OpMGet:
		found, err := s.store.BatchGet(req.Keys)
		if err != nil {
			return nil, err
		}
		values := make([][]byte, len(req.Keys))
		for i, key := range req.Keys {
			values[i] = found[key]
		}
		return protocol.EncodeMultiValueResponse(values)

	case protocol.OpMDel:
		if err := s.store.BatchDelete(req.Keys); err != nil {
			return nil, err
		}
		return protocol.EncodeIntResponse(int64(len(req.Keys)))
	}
	return nil, protocol.ErrUnknownOp
}

// errorResponse encodes err, falling back to a generic message when err's
// text does not fit a frame.
func errorResponse(err error) *buffer.Buffer {
	resp, encErr := protocol.EncodeErrorResponse(err)
	if encErr != nil {
		resp, _ = protocol.EncodeErrorResponse(errInternal)
	}
	return resp
}

var errInternal = errors.New("internal error")
