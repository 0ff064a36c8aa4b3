package chat

import (
	"context"

	"github.com/rudransh-shrivastava/peer-chat/internal/geo"
	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

// Rendezvous registers the local identity and brokers connections to
// other registered peers.
type Rendezvous interface {
	Register(ctx context.Context, id string) (string, error)
	Connect(ctx context.Context, remoteID string) (transport.Conn, error)
	OnIncoming(f func(conn transport.Conn))
	Release() error
}

type DeviceDescriptor struct {
	ID    string
	Label string
}

// Stream is an acquired video input.
type Stream interface {
	DeviceID() string
	// Capture grabs the current frame as a JPEG image.
	Capture() ([]byte, error)
}

type Camera interface {
	Acquire(ctx context.Context, deviceID string) (Stream, error)
	ListVideoInputs(ctx context.Context) ([]DeviceDescriptor, error)
	Release(s Stream) error
}

type Geolocator interface {
	CurrentPosition(ctx context.Context) (geo.Coordinates, error)
}

// Presenter renders the conversation. Calls are made with the controller
// lock held and must not call back into the controller.
type Presenter interface {
	SystemNotice(text string)
	ChatMessage(text string)
	Image(data []byte, sender string)
	Alert()
	Distance(km float64)
}
