package transport

import (
	"context"
	"errors"
)

var (
	ErrNotReady        = errors.New("data channel not ready")
	ErrPeerUnavailable = errors.New("peer unavailable")
)

// Conn is one peer-to-peer connection. Handlers registered with the On*
// methods replace any previously registered handler and are invoked from
// transport goroutines. OnClose reports a close initiated by the remote
// side or the network; Close does not invoke it.
type Conn interface {
	PeerID() string
	OnOpen(f func())
	OnData(f func(data []byte))
	OnClose(f func())
	OnError(f func(err error))
	Send(data []byte) error
	IsOpen() bool
	Close() error
}

// Signaler relays session descriptions through the rendezvous service.
type Signaler interface {
	Register(ctx context.Context, id string) (string, error)
	SendSignal(ctx context.Context, signal Signal) error
	// Signals returns the inbound signals of the current registration. The
	// channel is closed when the registration ends.
	Signals() <-chan Signal
	Release() error
}

type SignalKind uint8

const (
	SignalOffer SignalKind = iota + 1
	SignalAnswer
	SignalLeave
	SignalFailure
)

func (k SignalKind) String() string {
	switch k {
	case SignalOffer:
		return "OFFER"
	case SignalAnswer:
		return "ANSWER"
	case SignalLeave:
		return "LEAVE"
	case SignalFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

type Signal struct {
	Kind         SignalKind
	PeerID       string
	ConnectionID string
	Payload      []byte
	Err          error
}
