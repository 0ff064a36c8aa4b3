package signaling

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gobwas/ws"

	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

func TestBuildOfferFrame(t *testing.T) {
	f := BuildOfferFrame("peer123", "c1", "v=0...")

	if f.Type != FrameOffer {
		t.Fatalf("expected offer, got %s", f.Type)
	}
	if f.Dst != "peer123" {
		t.Errorf("expected peer123, got %s", f.Dst)
	}
	if f.ConnectionID != "c1" {
		t.Errorf("expected c1, got %s", f.ConnectionID)
	}
	if string(f.Payload) != "v=0..." {
		t.Errorf("expected 'v=0...', got %s", f.Payload)
	}
}

func TestBuildAnswerFrame(t *testing.T) {
	f := BuildAnswerFrame("peer456", "c2", "v=1...")

	if f.Type != FrameAnswer {
		t.Fatalf("expected answer, got %s", f.Type)
	}
	if string(f.Payload) != "v=1..." {
		t.Errorf("expected 'v=1...', got %s", f.Payload)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	frames := []Frame{
		BuildRegisterFrame("alice"),
		BuildRegisteredFrame("alice"),
		BuildOfferFrame("bob", "c1", "v=0\r\no=- 1 1 IN IP4 0.0.0.0"),
		BuildAnswerFrame("alice", "c1", "v=0"),
		BuildLeaveFrame("bob", "c1"),
		BuildErrorFrame(CodePeerUnavailable, "c1", "bob is not registered"),
	}

	for _, f := range frames {
		data, err := Marshal(f)
		if err != nil {
			t.Fatalf("Marshal %s failed: %v", f.Type, err)
		}

		got, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal %s failed: %v", f.Type, err)
		}

		if got.Type != f.Type || got.Src != f.Src || got.Dst != f.Dst || got.ConnectionID != f.ConnectionID ||
			got.Code != f.Code || got.Message != f.Message || !bytes.Equal(got.Payload, f.Payload) {
			t.Errorf("round trip mismatch: %+v vs %+v", f, got)
		}
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xFF, 0x00}); !errors.Is(err, ErrBadFrame) {
		t.Errorf("Expected ErrBadFrame, got %v", err)
	}

	data, err := Marshal(Frame{Src: "x"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, ErrBadFrame) {
		t.Errorf("Expected ErrBadFrame for missing type, got %v", err)
	}
}

func TestFrameErr(t *testing.T) {
	cases := map[ErrorCode]error{
		CodeIDTaken:         ErrIDTaken,
		CodeInvalidID:       ErrInvalidID,
		CodePeerUnavailable: transport.ErrPeerUnavailable,
		CodeNotRegistered:   ErrNotRegistered,
		CodeBadFrame:        ErrBadFrame,
		ErrorCode("WHAT"):   ErrBadFrame,
	}

	for code, want := range cases {
		err := BuildErrorFrame(code, "", "details").Err()
		if !errors.Is(err, want) {
			t.Errorf("code %s: expected %v, got %v", code, want, err)
		}
	}

	if err := BuildOfferFrame("bob", "c1", "").Err(); err != nil {
		t.Errorf("Expected nil error for offer frame, got %v", err)
	}
}

func TestWriteReadFrame(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteFrame(&buf, ws.StateClientSide, BuildRegisterFrame("alice")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	rw := struct {
		*bytes.Buffer
	}{&buf}
	f, err := ReadFrame(rw, ws.StateServerSide)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if f.Type != FrameRegister || f.Src != "alice" {
		t.Errorf("unexpected frame %+v", f)
	}
}
