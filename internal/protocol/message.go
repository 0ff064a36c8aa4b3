package protocol

import "github.com/rudransh-shrivastava/peer-chat/internal/geo"

// Envelope is one chat message on the data channel. The set of
// implementations is closed.
type Envelope interface {
	Type() MessageType
	envelope()
}

// Name announces the sender's display name.
type Name struct {
	DisplayName string
}

func (Name) Type() MessageType { return MsgName }
func (Name) envelope()          {}

type Text struct {
	Body string
}

func (Text) Type() MessageType { return MsgText }
func (Text) envelope()          {}

// Buzz asks the receiver to render an attention alert.
type Buzz struct{}

func (Buzz) Type() MessageType { return MsgBuzz }
func (Buzz) envelope()          {}

type Image struct {
	Data []byte
}

func (Image) Type() MessageType { return MsgImage }
func (Image) envelope()          {}

type Location struct {
	Coordinates geo.Coordinates
}

func (Location) Type() MessageType { return MsgLocation }
func (Location) envelope()          {}

// End carries the notice shown to the receiver when the sender hangs up.
type End struct {
	Notice string
}

func (End) Type() MessageType { return MsgEnd }
func (End) envelope()          {}
