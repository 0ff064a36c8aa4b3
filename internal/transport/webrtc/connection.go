package webrtc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

const (
	flushTimeout  = 2 * time.Second
	flushInterval = 20 * time.Millisecond

	// maxPending bounds the messages held until a data handler is set.
	maxPending = 64
)

var ErrConnectionFailed = errors.New("peer connection failed")

// connection is a transport.Conn over one pion data channel.
type connection struct {
	peerID       string
	connectionID string
	pc           *webrtc.PeerConnection
	isInitiator  bool
	logger       *logrus.Logger
	// release removes the connection from its transport.
	release func()
	// leave tells the peer about a local close.
	leave func()

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	open      bool
	closed    bool
	onOpen    func()
	onData    func([]byte)
	onClose   func()
	onError   func(error)
	assembler assembler
	// pending holds messages that arrived before OnData, or while they
	// are still being handed over.
	pending   [][]byte
	draining  bool
	closeOnce sync.Once
}

func newConnection(peerID, connectionID string, pc *webrtc.PeerConnection, isInitiator bool, logger *logrus.Logger) *connection {
	conn := &connection{
		peerID:       peerID,
		connectionID: connectionID,
		pc:           pc,
		isInitiator:  isInitiator,
		logger:       logger,
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		conn.logger.Debugf("Peer connection %s with %s: %s", connectionID, peerID, s)
		switch s {
		case webrtc.PeerConnectionStateFailed:
			conn.fireError(ErrConnectionFailed)
		case webrtc.PeerConnectionStateClosed:
			conn.fireClose()
		}
	})

	if !isInitiator {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			conn.setupDataChannel(dc)
		})
	}

	return conn
}

func (c *connection) createDataChannel() error {
	dc, err := c.pc.CreateDataChannel(channelLabel, DefaultDataChannelConfig())
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	c.setupDataChannel(dc)
	return nil
}

func (c *connection) setupDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.open = true
		f := c.onOpen
		c.mu.Unlock()

		c.logger.Debugf("Data channel %s with %s open", c.connectionID, c.peerID)
		if f != nil {
			f()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.receive(msg.Data)
	})

	dc.OnClose(func() {
		c.fireClose()
	})

	dc.OnError(func(err error) {
		c.fireError(err)
	})
}

func (c *connection) receive(frag []byte) {
	c.mu.Lock()
	data, done, err := c.assembler.push(frag)
	if err != nil || !done {
		c.mu.Unlock()
		if err != nil {
			c.logger.Warnf("Dropping fragment from %s: %v", c.peerID, err)
		}
		return
	}

	if c.onData == nil || c.draining {
		if len(c.pending) >= maxPending {
			c.mu.Unlock()
			c.logger.Warnf("Dropping message from %s: no data handler", c.peerID)
			return
		}
		c.pending = append(c.pending, data)
		c.mu.Unlock()
		return
	}
	f := c.onData
	c.mu.Unlock()

	f(data)
}

// drain hands queued messages to the data handler in arrival order.
func (c *connection) drain() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 || c.onData == nil {
			c.draining = false
			c.mu.Unlock()
			return
		}
		data := c.pending[0]
		c.pending = c.pending[1:]
		f := c.onData
		c.mu.Unlock()

		f(data)
	}
}

// setRemoteDescription applies the peer's answer to our offer.
func (c *connection) setRemoteDescription(sdp string) error {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if !c.isInitiator {
		desc.Type = webrtc.SDPTypeOffer
	}

	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

func (c *connection) fireClose() {
	fired := false
	c.closeOnce.Do(func() {
		fired = true
		c.forget()
	})
	if !fired {
		return
	}

	c.mu.Lock()
	c.open = false
	f := c.onClose
	c.mu.Unlock()

	if f != nil {
		f()
	}
}

func (c *connection) forget() {
	if c.release != nil {
		c.release()
	}
}

func (c *connection) fireError(err error) {
	c.mu.Lock()
	f := c.onError
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	c.logger.Debugf("Connection %s with %s: %v", c.connectionID, c.peerID, err)
	if f != nil {
		f(err)
	}
}

func (c *connection) PeerID() string {
	return c.peerID
}

func (c *connection) OnOpen(f func()) {
	c.mu.Lock()
	c.onOpen = f
	c.mu.Unlock()
}

// OnData sets the data handler. Messages that arrived earlier are
// delivered from a separate goroutine, so f may be set while its owner
// holds locks that f itself takes.
func (c *connection) OnData(f func([]byte)) {
	c.mu.Lock()
	c.onData = f
	start := f != nil && len(c.pending) > 0 && !c.draining
	if start {
		c.draining = true
	}
	c.mu.Unlock()

	if start {
		go c.drain()
	}
}

func (c *connection) OnClose(f func()) {
	c.mu.Lock()
	c.onClose = f
	c.mu.Unlock()
}

func (c *connection) OnError(f func(error)) {
	c.mu.Lock()
	c.onError = f
	c.mu.Unlock()
}

func (c *connection) Send(data []byte) error {
	c.mu.Lock()
	dc, open := c.dc, c.open
	c.mu.Unlock()

	if dc == nil || !open {
		return transport.ErrNotReady
	}

	for _, frag := range fragment(data) {
		if err := dc.Send(frag); err != nil {
			return err
		}
	}
	return nil
}

func (c *connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close flushes queued data, then closes the data channel and the peer
// connection. The close handler is not invoked for a local close.
func (c *connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dc := c.dc
	c.mu.Unlock()

	if dc != nil {
		c.flush(dc)
		_ = dc.Close()
	}
	local := false
	c.closeOnce.Do(func() {
		local = true
		c.forget()
	})
	if local && c.leave != nil {
		c.leave()
	}
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return c.pc.Close()
}

func (c *connection) flush(dc *webrtc.DataChannel) {
	deadline := time.Now().Add(flushTimeout)
	for dc.ReadyState() == webrtc.DataChannelStateOpen && dc.BufferedAmount() > 0 && time.Now().Before(deadline) {
		time.Sleep(flushInterval)
	}
}
