// Package webrtc implements the chat transport over pion data channels.
package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

const (
	defaultGatherTimeout = 15 * time.Second
	leaveTimeout         = 2 * time.Second
)

// Transport dials and accepts peer connections, exchanging session
// descriptions through a Signaler. Candidates are gathered before a
// description is sent, so an offer and its answer are the only signals
// needed per connection.
type Transport struct {
	config        webrtc.Configuration
	signaler      transport.Signaler
	logger        *logrus.Logger
	gatherTimeout time.Duration

	mu          sync.Mutex
	connections map[string]*connection
	onIncoming  func(transport.Conn)
}

func New(signaler transport.Signaler, stunServers []string, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Transport{
		config:        NewConfiguration(stunServers),
		signaler:      signaler,
		logger:        logger,
		gatherTimeout: defaultGatherTimeout,
		connections:   make(map[string]*connection),
	}
}

// Register claims id with the signaling service and starts handling
// inbound signals for it.
func (t *Transport) Register(ctx context.Context, id string) (string, error) {
	assigned, err := t.signaler.Register(ctx, id)
	if err != nil {
		return "", err
	}

	go t.pump(t.signaler.Signals())
	return assigned, nil
}

// OnIncoming sets the handler for connections offered by remote peers.
func (t *Transport) OnIncoming(f func(transport.Conn)) {
	t.mu.Lock()
	t.onIncoming = f
	t.mu.Unlock()
}

// Connect offers a connection to peerID. The returned connection opens
// once the peer answers and ICE completes.
func (t *Transport) Connect(ctx context.Context, peerID string) (transport.Conn, error) {
	pc, err := webrtc.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn := t.track(newConnection(peerID, uuid.NewString(), pc, true, t.logger))

	if err := conn.createDataChannel(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	sdp, err := t.gather(ctx, pc, offer)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	err = t.signaler.SendSignal(ctx, transport.Signal{
		Kind:         transport.SignalOffer,
		PeerID:       peerID,
		ConnectionID: conn.connectionID,
		Payload:      []byte(sdp),
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send offer: %w", err)
	}

	t.logger.Infof("Sent offer %s to %s", conn.connectionID, peerID)
	return conn, nil
}

// Release closes every connection and ends the signaling registration.
func (t *Transport) Release() error {
	t.mu.Lock()
	conns := make([]*connection, 0, len(t.connections))
	for _, conn := range t.connections {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return t.signaler.Release()
}

func (t *Transport) track(conn *connection) *connection {
	conn.release = func() { t.forget(conn.connectionID) }
	conn.leave = func() { t.sendLeave(conn.peerID, conn.connectionID) }

	t.mu.Lock()
	t.connections[conn.connectionID] = conn
	t.mu.Unlock()
	return conn
}

func (t *Transport) forget(connectionID string) {
	t.mu.Lock()
	delete(t.connections, connectionID)
	t.mu.Unlock()
}

func (t *Transport) sendLeave(peerID, connectionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	err := t.signaler.SendSignal(ctx, transport.Signal{
		Kind:         transport.SignalLeave,
		PeerID:       peerID,
		ConnectionID: connectionID,
	})
	if err != nil {
		t.logger.Debugf("Failed to send leave for %s: %v", connectionID, err)
	}
}

func (t *Transport) lookup(connectionID string) (*connection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn, ok := t.connections[connectionID]
	return conn, ok
}

// gather sets desc as the local description and waits for ICE candidate
// gathering to finish, returning the complete SDP.
func (t *Transport) gather(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (string, error) {
	done := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	timer := time.NewTimer(t.gatherTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		return "", fmt.Errorf("ICE gathering timed out after %s", t.gatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return pc.LocalDescription().SDP, nil
}

func (t *Transport) pump(signals <-chan transport.Signal) {
	for sig := range signals {
		t.handleSignal(sig)
	}
	t.logger.Debugf("Signaling channel closed")
}

func (t *Transport) handleSignal(sig transport.Signal) {
	t.logger.Debugf("Received %s from %s for %s", sig.Kind, sig.PeerID, sig.ConnectionID)

	switch sig.Kind {
	case transport.SignalOffer:
		if err := t.accept(sig); err != nil {
			t.logger.Warnf("Failed to accept offer from %s: %v", sig.PeerID, err)
		}
	case transport.SignalAnswer:
		conn, ok := t.lookup(sig.ConnectionID)
		if !ok {
			t.logger.Warnf("Answer for unknown connection %s", sig.ConnectionID)
			return
		}
		if err := conn.setRemoteDescription(string(sig.Payload)); err != nil {
			conn.fireError(err)
		}
	case transport.SignalLeave:
		if conn, ok := t.lookup(sig.ConnectionID); ok {
			conn.fireClose()
		}
	case transport.SignalFailure:
		conn, ok := t.lookup(sig.ConnectionID)
		if !ok {
			t.logger.Warnf("Signaling error: %v", sig.Err)
			return
		}
		conn.fireError(sig.Err)
	default:
		t.logger.Warnf("Unknown signal kind %d from %s", sig.Kind, sig.PeerID)
	}
}

func (t *Transport) accept(sig transport.Signal) error {
	t.mu.Lock()
	onIncoming := t.onIncoming
	t.mu.Unlock()

	if onIncoming == nil {
		return fmt.Errorf("no handler for incoming connections")
	}

	pc, err := webrtc.NewPeerConnection(t.config)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn := t.track(newConnection(sig.PeerID, sig.ConnectionID, pc, false, t.logger))

	if err := conn.setRemoteDescription(string(sig.Payload)); err != nil {
		_ = conn.Close()
		return err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create answer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.gatherTimeout)
	defer cancel()

	sdp, err := t.gather(ctx, pc, answer)
	if err != nil {
		_ = conn.Close()
		return err
	}

	err = t.signaler.SendSignal(ctx, transport.Signal{
		Kind:         transport.SignalAnswer,
		PeerID:       sig.PeerID,
		ConnectionID: sig.ConnectionID,
		Payload:      []byte(sdp),
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to send answer: %w", err)
	}

	t.logger.Infof("Answered offer %s from %s", sig.ConnectionID, sig.PeerID)
	onIncoming(conn)
	return nil
}
