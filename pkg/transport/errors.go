package transport

import "errors"

var (
	ErrNotInitialized = errors.New("transport: used before initialized")
	ErrClosed         = errors.New("transport: closed")
	ErrNotConnected   = errors.New("transport: not connected")
	ErrInvalidConfig  = errors.New("transport: invalid config")
	ErrNilBuffer      = errors.New("transport: nil buffer")
)
