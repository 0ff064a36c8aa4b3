package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rudransh-shrivastava/peer-chat/internal/geo"
	"github.com/rudransh-shrivastava/peer-chat/internal/protocol"
	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

// fakeNetwork queues deliveries between fake connections until flush is
// called, so tests decide when remote events happen.
type fakeNetwork struct {
	mu      sync.Mutex
	pending []func()
	peers   map[string]*fakeRendezvous
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{peers: make(map[string]*fakeRendezvous)}
}

func (n *fakeNetwork) enqueue(f func()) {
	n.mu.Lock()
	n.pending = append(n.pending, f)
	n.mu.Unlock()
}

func (n *fakeNetwork) flush() {
	for {
		n.mu.Lock()
		if len(n.pending) == 0 {
			n.mu.Unlock()
			return
		}
		next := n.pending[0]
		n.pending = n.pending[1:]
		n.mu.Unlock()

		next()
	}
}

func (n *fakeNetwork) pipe(a, b string) (*fakeConn, *fakeConn) {
	ca := &fakeConn{peerID: b, net: n}
	cb := &fakeConn{peerID: a, net: n}
	ca.peer, cb.peer = cb, ca
	return ca, cb
}

type fakeConn struct {
	peerID string
	net    *fakeNetwork
	peer   *fakeConn

	mu      sync.Mutex
	open    bool
	closed  bool
	sendErr error
	sent    [][]byte
	onOpen  func()
	onData  func([]byte)
	onClose func()
	onError func(error)
}

func newFakeConn(peerID string) *fakeConn {
	return &fakeConn{peerID: peerID}
}

func (c *fakeConn) PeerID() string { return c.peerID }

func (c *fakeConn) OnOpen(f func()) {
	c.mu.Lock()
	c.onOpen = f
	c.mu.Unlock()
}

func (c *fakeConn) OnData(f func([]byte)) {
	c.mu.Lock()
	c.onData = f
	c.mu.Unlock()
}

func (c *fakeConn) OnClose(f func()) {
	c.mu.Lock()
	c.onClose = f
	c.mu.Unlock()
}

func (c *fakeConn) OnError(f func(error)) {
	c.mu.Lock()
	c.onError = f
	c.mu.Unlock()
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return transport.ErrNotReady
	}
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	peer := c.peer
	c.mu.Unlock()

	if peer != nil {
		c.net.enqueue(func() { peer.deliver(data) })
	}
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	peer := c.peer
	c.mu.Unlock()

	if peer != nil {
		c.net.enqueue(peer.remoteClosed)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) fireOpen() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.open = true
	f := c.onOpen
	c.mu.Unlock()

	if f != nil {
		f()
	}
}

func (c *fakeConn) deliver(data []byte) {
	c.mu.Lock()
	f := c.onData
	closed := c.closed
	c.mu.Unlock()

	if f != nil && !closed {
		f(data)
	}
}

func (c *fakeConn) remoteClosed() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.open = false
	f := c.onClose
	c.mu.Unlock()

	if f != nil {
		f()
	}
}

func (c *fakeConn) fireError(err error) {
	c.mu.Lock()
	f := c.onError
	c.mu.Unlock()

	if f != nil {
		f(err)
	}
}

// sentEnvelopes decodes everything written to the connection.
func (c *fakeConn) sentEnvelopes() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	codec := protocol.NewCodec()
	envs := make([]protocol.Envelope, 0, len(c.sent))
	for _, data := range c.sent {
		env, err := codec.DecodeFromBytes(data)
		if err != nil {
			panic(fmt.Sprintf("undecodable envelope: %v", err))
		}
		envs = append(envs, env)
	}
	return envs
}

var errIDTaken = errors.New("id taken")

type fakeRendezvous struct {
	net *fakeNetwork

	mu          sync.Mutex
	id          string
	registerErr error
	connectErr  error
	registered  int
	released    int
	onIncoming  func(transport.Conn)
	dialed      []*fakeConn
	// holdDial, when set, makes Connect return an unopened connection.
	holdDial bool
}

func newFakeRendezvous(net *fakeNetwork) *fakeRendezvous {
	return &fakeRendezvous{net: net}
}

func (r *fakeRendezvous) Register(_ context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registerErr != nil {
		return "", r.registerErr
	}
	if r.net != nil {
		r.net.mu.Lock()
		defer r.net.mu.Unlock()
		if _, taken := r.net.peers[id]; taken {
			return "", errIDTaken
		}
		r.net.peers[id] = r
	}
	r.id = id
	r.registered++
	return id, nil
}

func (r *fakeRendezvous) Connect(_ context.Context, remoteID string) (transport.Conn, error) {
	r.mu.Lock()
	connectErr, hold, localID := r.connectErr, r.holdDial, r.id
	r.mu.Unlock()

	if connectErr != nil {
		return nil, connectErr
	}

	r.net.mu.Lock()
	remote, ok := r.net.peers[remoteID]
	r.net.mu.Unlock()
	if !ok {
		return nil, transport.ErrPeerUnavailable
	}

	local, remoteEnd := r.net.pipe(localID, remoteID)
	r.mu.Lock()
	r.dialed = append(r.dialed, local)
	r.mu.Unlock()

	r.net.enqueue(func() {
		remote.mu.Lock()
		f := remote.onIncoming
		remote.mu.Unlock()
		if f != nil {
			f(remoteEnd)
		}
	})
	if !hold {
		r.net.enqueue(remoteEnd.fireOpen)
		r.net.enqueue(local.fireOpen)
	}
	return local, nil
}

func (r *fakeRendezvous) OnIncoming(f func(transport.Conn)) {
	r.mu.Lock()
	r.onIncoming = f
	r.mu.Unlock()
}

func (r *fakeRendezvous) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.net != nil && r.id != "" {
		r.net.mu.Lock()
		delete(r.net.peers, r.id)
		r.net.mu.Unlock()
	}
	r.id = ""
	r.released++
	return nil
}

type fakePresenter struct {
	mu        sync.Mutex
	notices   []string
	messages  []string
	images    []string
	alerts    int
	distances []float64
}

func (p *fakePresenter) SystemNotice(text string) {
	p.mu.Lock()
	p.notices = append(p.notices, text)
	p.mu.Unlock()
}

func (p *fakePresenter) ChatMessage(text string) {
	p.mu.Lock()
	p.messages = append(p.messages, text)
	p.mu.Unlock()
}

func (p *fakePresenter) Image(data []byte, sender string) {
	p.mu.Lock()
	p.images = append(p.images, fmt.Sprintf("%s:%d", sender, len(data)))
	p.mu.Unlock()
}

func (p *fakePresenter) Alert() {
	p.mu.Lock()
	p.alerts++
	p.mu.Unlock()
}

func (p *fakePresenter) Distance(km float64) {
	p.mu.Lock()
	p.distances = append(p.distances, km)
	p.mu.Unlock()
}

func (p *fakePresenter) lastNotice() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.notices) == 0 {
		return ""
	}
	return p.notices[len(p.notices)-1]
}

func (p *fakePresenter) hasNotice(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.notices {
		if n == text {
			return true
		}
	}
	return false
}

type fakeStream struct {
	id       string
	frame    []byte
	err      error
	released bool
}

func (s *fakeStream) DeviceID() string { return s.id }

func (s *fakeStream) Capture() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.frame, nil
}

type fakeCamera struct {
	devices    []DeviceDescriptor
	acquireErr error
	streams    []*fakeStream
	frame      []byte
}

func (c *fakeCamera) Acquire(_ context.Context, deviceID string) (Stream, error) {
	if c.acquireErr != nil {
		return nil, c.acquireErr
	}
	if deviceID == "" && len(c.devices) > 0 {
		deviceID = c.devices[0].ID
	}
	s := &fakeStream{id: deviceID, frame: c.frame}
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *fakeCamera) ListVideoInputs(context.Context) ([]DeviceDescriptor, error) {
	return c.devices, nil
}

func (c *fakeCamera) Release(s Stream) error {
	s.(*fakeStream).released = true
	return nil
}

type fakeGeolocator struct {
	pos geo.Coordinates
	err error
}

func (g *fakeGeolocator) CurrentPosition(context.Context) (geo.Coordinates, error) {
	return g.pos, g.err
}
