package webrtc

import (
	"strings"

	"github.com/pion/webrtc/v3"
	"github.com/samber/lo"
)

// DefaultSTUNServers are used when no servers are configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

const (
	channelLabel    = "chat"
	channelProtocol = "peer-chat"
)

// NewConfiguration builds a peer connection configuration with one ICE
// server group holding stunServers. Blank entries are dropped.
func NewConfiguration(stunServers []string) webrtc.Configuration {
	urls := lo.Uniq(lo.Compact(lo.Map(stunServers, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))

	cfg := webrtc.Configuration{ICETransportPolicy: webrtc.ICETransportPolicyAll}
	if len(urls) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: urls}}
	}
	return cfg
}

func DefaultDataChannelConfig() *webrtc.DataChannelInit {
	protocolName := channelProtocol
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}
