package chat

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotReady         = errors.New("identity not claimed")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrMediaUnavailable = errors.New("media unavailable")
	ErrTransport        = errors.New("transport error")
)
