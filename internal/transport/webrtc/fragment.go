package webrtc

import (
	"errors"
	"fmt"
)

// Messages are split into fragments that fit comfortably in one SCTP
// message. Each fragment starts with a flag byte telling whether more
// fragments of the same message follow.
const (
	maxFragmentPayload = 16 * 1024
	maxMessageSize     = 24 * 1024 * 1024

	flagFinal byte = 0x00
	flagMore  byte = 0x01
)

var (
	errEmptyFragment   = errors.New("empty fragment")
	errMessageTooLarge = errors.New("reassembled message too large")
)

func fragment(data []byte) [][]byte {
	if len(data) == 0 {
		return [][]byte{{flagFinal}}
	}

	frags := make([][]byte, 0, (len(data)+maxFragmentPayload-1)/maxFragmentPayload)
	for start := 0; start < len(data); start += maxFragmentPayload {
		end := min(start+maxFragmentPayload, len(data))

		flag := flagMore
		if end == len(data) {
			flag = flagFinal
		}

		frag := make([]byte, 0, 1+end-start)
		frag = append(frag, flag)
		frag = append(frag, data[start:end]...)
		frags = append(frags, frag)
	}
	return frags
}

type assembler struct {
	buf []byte
}

// push adds a fragment and returns the message once its final fragment
// has arrived.
func (a *assembler) push(frag []byte) ([]byte, bool, error) {
	if len(frag) == 0 {
		return nil, false, errEmptyFragment
	}

	flag, payload := frag[0], frag[1:]
	if flag != flagFinal && flag != flagMore {
		a.buf = nil
		return nil, false, fmt.Errorf("unknown fragment flag 0x%02x", flag)
	}
	if len(a.buf)+len(payload) > maxMessageSize {
		a.buf = nil
		return nil, false, errMessageTooLarge
	}

	a.buf = append(a.buf, payload...)
	if flag == flagMore {
		return nil, false, nil
	}

	msg := a.buf
	a.buf = nil
	if msg == nil {
		msg = []byte{}
	}
	return msg, true, nil
}
