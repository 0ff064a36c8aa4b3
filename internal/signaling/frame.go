// Package signaling carries session descriptions between chat clients
// through the rendezvous server.
package signaling

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

type FrameType string

const (
	FrameRegister   FrameType = "register"
	FrameRegistered FrameType = "registered"
	FrameOffer      FrameType = "offer"
	FrameAnswer     FrameType = "answer"
	FrameLeave      FrameType = "leave"
	FrameError      FrameType = "error"
)

type ErrorCode string

const (
	CodeIDTaken         ErrorCode = "ID_TAKEN"
	CodeInvalidID       ErrorCode = "INVALID_ID"
	CodePeerUnavailable ErrorCode = "PEER_UNAVAILABLE"
	CodeNotRegistered   ErrorCode = "NOT_REGISTERED"
	CodeBadFrame        ErrorCode = "BAD_FRAME"
)

var (
	ErrIDTaken       = errors.New("id is taken")
	ErrInvalidID     = errors.New("invalid id")
	ErrNotRegistered = errors.New("not registered")
	ErrBadFrame      = errors.New("bad frame")
)

// Frame is one signaling message. Src is the sender's registered id as
// stamped by the server, Dst the recipient's.
type Frame struct {
	Type         FrameType `cbor:"type"`
	Src          string    `cbor:"src,omitempty"`
	Dst          string    `cbor:"dst,omitempty"`
	ConnectionID string    `cbor:"cid,omitempty"`
	Payload      []byte    `cbor:"payload,omitempty"`
	Code         ErrorCode `cbor:"code,omitempty"`
	Message      string    `cbor:"message,omitempty"`
}

// Err maps an error frame to a sentinel error.
func (f Frame) Err() error {
	if f.Type != FrameError {
		return nil
	}

	var base error
	switch f.Code {
	case CodeIDTaken:
		base = ErrIDTaken
	case CodeInvalidID:
		base = ErrInvalidID
	case CodePeerUnavailable:
		base = transport.ErrPeerUnavailable
	case CodeNotRegistered:
		base = ErrNotRegistered
	default:
		base = ErrBadFrame
	}

	if f.Message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, f.Message)
}

func BuildRegisterFrame(id string) Frame {
	return Frame{Type: FrameRegister, Src: id}
}

func BuildRegisteredFrame(id string) Frame {
	return Frame{Type: FrameRegistered, Src: id}
}

func BuildOfferFrame(dst, connectionID, sdp string) Frame {
	return Frame{Type: FrameOffer, Dst: dst, ConnectionID: connectionID, Payload: []byte(sdp)}
}

func BuildAnswerFrame(dst, connectionID, sdp string) Frame {
	return Frame{Type: FrameAnswer, Dst: dst, ConnectionID: connectionID, Payload: []byte(sdp)}
}

func BuildLeaveFrame(dst, connectionID string) Frame {
	return Frame{Type: FrameLeave, Dst: dst, ConnectionID: connectionID}
}

func BuildErrorFrame(code ErrorCode, connectionID, message string) Frame {
	return Frame{Type: FrameError, Code: code, ConnectionID: connectionID, Message: message}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("signaling: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("signaling: CBOR decoder initialization failed: " + err.Error())
	}
}

func Marshal(f Frame) ([]byte, error) {
	return encMode.Marshal(f)
}

func Unmarshal(data []byte) (Frame, error) {
	var f Frame
	if err := decMode.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrBadFrame)
	}
	return f, nil
}

// WriteFrame writes f as one binary WebSocket message. state selects
// client-side masking.
func WriteFrame(w io.Writer, state ws.State, f Frame) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	return wsutil.WriteMessage(w, state, ws.OpBinary, data)
}

// ReadFrame reads the next data message, answering control frames on rw.
func ReadFrame(rw io.ReadWriter, state ws.State) (Frame, error) {
	data, op, err := wsutil.ReadData(rw, state)
	if err != nil {
		return Frame{}, err
	}
	if op != ws.OpBinary {
		return Frame{}, fmt.Errorf("%w: unexpected opcode %v", ErrBadFrame, op)
	}
	return Unmarshal(data)
}
