// Package chat implements the lifecycle of a one-to-one chat: claiming an
// identity, connecting to a peer and exchanging envelopes with it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-chat/internal/geo"
	"github.com/rudransh-shrivastava/peer-chat/internal/protocol"
	"github.com/rudransh-shrivastava/peer-chat/internal/session"
	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

type Config struct {
	Rendezvous Rendezvous
	Presenter  Presenter
	Camera     Camera
	Geolocator Geolocator
	Logger     *logrus.Logger
}

// Controller owns the session state and at most one connection. Every
// state transition and every connection event runs under mu, so handlers
// run to completion one at a time.
type Controller struct {
	rendezvous Rendezvous
	presenter  Presenter
	camera     Camera
	geolocator Geolocator
	codec      *protocol.Codec
	logger     *logrus.Logger

	mu          sync.Mutex
	state       State
	session     *session.Session
	localID     string
	conn        transport.Conn
	announced   bool
	opened      bool
	registering bool
	dialing     bool
	epoch       uint64
	stream      Stream
}

func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Controller{
		rendezvous: cfg.Rendezvous,
		presenter:  cfg.Presenter,
		camera:     cfg.Camera,
		geolocator: cfg.Geolocator,
		codec:      protocol.NewCodec(),
		logger:     logger,
		session:    session.New(),
	}

	cfg.Rendezvous.OnIncoming(func(conn transport.Conn) {
		_ = c.AcceptInbound(conn)
	})

	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LocalID returns the identity assigned by the rendezvous service, or ""
// while Idle.
func (c *Controller) LocalID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localID
}

// Session returns a copy of the current session state.
func (c *Controller) Session() session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// ClaimIdentity registers id with the rendezvous service and starts
// advertising under it.
func (c *Controller) ClaimIdentity(ctx context.Context, id, displayName string) error {
	id = strings.TrimSpace(id)
	displayName = strings.TrimSpace(displayName)
	if id == "" || displayName == "" {
		return c.fail(fmt.Errorf("%w: an ID and a display name are required", ErrInvalidInput))
	}

	c.mu.Lock()
	if c.state != StateIdle || c.registering {
		err := c.failLocked(fmt.Errorf("%w: identity already claimed", ErrInvalidInput))
		c.mu.Unlock()
		return err
	}
	c.registering = true
	c.mu.Unlock()

	assigned, err := c.rendezvous.Register(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.registering = false

	if err != nil {
		return c.failLocked(fmt.Errorf("%w: register %s: %w", ErrTransport, id, err))
	}

	c.localID = assigned
	c.session.LocalName = displayName
	c.state = StateAdvertising
	c.logger.Infof("Registered as %s", assigned)
	c.presenter.SystemNotice(fmt.Sprintf("Your ID: %s", assigned))
	return nil
}

// AcceptInbound adopts a connection offered by a remote peer. A rejected
// connection is closed.
func (c *Controller) AcceptInbound(conn transport.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateIdle:
		_ = conn.Close()
		return c.failLocked(fmt.Errorf("%w: rejected connection from %s", ErrNotReady, conn.PeerID()))
	case c.conn != nil:
		_ = conn.Close()
		return c.failLocked(fmt.Errorf("%w: rejected connection from %s", ErrAlreadyConnected, conn.PeerID()))
	}

	c.bindLocked(conn)
	c.state = StateConnected
	c.logger.Infof("Accepted connection from %s", conn.PeerID())
	c.presenter.SystemNotice(fmt.Sprintf("Connected with %s", conn.PeerID()))

	if conn.IsOpen() {
		c.opened = true
		c.announceLocked()
	}
	return nil
}

// ConnectTo dials remoteID. The connection stays pending, and the
// controller Advertising, until the transport reports it open.
func (c *Controller) ConnectTo(ctx context.Context, remoteID string) error {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return c.fail(fmt.Errorf("%w: a remote ID is required", ErrInvalidInput))
	}

	epoch, err := c.beginDial(remoteID)
	if err != nil {
		return err
	}

	conn, err := c.rendezvous.Connect(ctx, remoteID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch {
		c.dialing = false
	}

	if err != nil {
		return c.failLocked(fmt.Errorf("%w: connect to %s: %w", ErrTransport, remoteID, err))
	}

	switch {
	case c.epoch != epoch || c.state == StateIdle:
		_ = conn.Close()
		return c.failLocked(fmt.Errorf("%w: chat ended while connecting to %s", ErrNotReady, remoteID))
	case c.conn != nil:
		_ = conn.Close()
		return c.failLocked(ErrAlreadyConnected)
	}

	c.bindLocked(conn)
	c.logger.Infof("Dialed %s, waiting for the data channel", remoteID)

	if conn.IsOpen() {
		c.openLocked(conn)
	}
	return nil
}

func (c *Controller) beginDial(remoteID string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateIdle:
		return 0, c.failLocked(ErrNotReady)
	case remoteID == c.localID:
		return 0, c.failLocked(fmt.Errorf("%w: cannot connect to yourself", ErrInvalidInput))
	case c.conn != nil || c.dialing:
		return 0, c.failLocked(ErrAlreadyConnected)
	}

	c.dialing = true
	c.presenter.SystemNotice(fmt.Sprintf("Connecting to %s...", remoteID))
	return c.epoch, nil
}

// Teardown ends the chat: the peer is told, the connection closed, the
// camera and the rendezvous registration released, and the session reset.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return
	}
	c.teardownLocked(true)
}

func (c *Controller) teardownLocked(notifyPeer bool) {
	if conn := c.conn; conn != nil {
		c.conn = nil
		if notifyPeer && conn.IsOpen() {
			end := protocol.End{Notice: fmt.Sprintf("%s ended the chat.", c.session.LocalName)}
			if data, err := c.codec.EncodeToBytes(end); err != nil {
				c.logger.Warnf("Failed to encode end message: %v", err)
			} else if err := conn.Send(data); err != nil {
				c.logger.Warnf("Failed to send end message to %s: %v", conn.PeerID(), err)
			}
		}
		if err := conn.Close(); err != nil {
			c.logger.Debugf("Closing connection to %s: %v", conn.PeerID(), err)
		}
	}

	c.releaseStreamLocked()

	if err := c.rendezvous.Release(); err != nil {
		c.logger.Warnf("Failed to release registration %s: %v", c.localID, err)
	}

	c.session.Reset()
	c.localID = ""
	c.announced = false
	c.opened = false
	c.dialing = false
	c.epoch++
	c.state = StateIdle
	c.presenter.SystemNotice("Chat ended.")
}

func (c *Controller) bindLocked(conn transport.Conn) {
	c.conn = conn
	c.announced = false
	c.opened = false

	conn.OnOpen(func() { c.handleOpen(conn) })
	conn.OnData(func(data []byte) { c.handleData(conn, data) })
	conn.OnClose(func() { c.handleClose(conn) })
	conn.OnError(func(err error) { c.handleError(conn, err) })
}

func (c *Controller) handleOpen(conn transport.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn != c.conn {
		return
	}
	c.openLocked(conn)
}

func (c *Controller) openLocked(conn transport.Conn) {
	c.opened = true
	if c.state == StateAdvertising {
		c.state = StateConnected
		c.logger.Infof("Connected to %s", conn.PeerID())
		c.presenter.SystemNotice(fmt.Sprintf("Connected with %s", conn.PeerID()))
	}
	c.announceLocked()
}

// announceLocked sends the local display name once per connection.
func (c *Controller) announceLocked() {
	if c.announced {
		return
	}
	c.announced = true

	if err := c.sendLocked(protocol.Name{DisplayName: c.session.LocalName}); err != nil {
		_ = c.failLocked(err)
	}
}

func (c *Controller) handleData(conn transport.Conn, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn != c.conn {
		return
	}
	// Data can be delivered before the open callback has run.
	if c.state != StateConnected {
		c.openLocked(conn)
		if conn != c.conn {
			return
		}
	}

	env, err := c.codec.DecodeFromBytes(data)
	switch {
	case errors.Is(err, protocol.ErrUnknownType):
		c.logger.Debugf("Ignoring message from %s: %v", conn.PeerID(), err)
		return
	case err != nil:
		c.logger.Warnf("Dropping message from %s: %v", conn.PeerID(), err)
		return
	}

	c.logger.Debugf("Received %s from %s", env.Type(), conn.PeerID())
	c.receiveLocked(env)
}

func (c *Controller) receiveLocked(env protocol.Envelope) {
	switch e := env.(type) {
	case protocol.Name:
		c.session.SetRemoteName(e.DisplayName)
		c.presenter.SystemNotice(fmt.Sprintf("Chatting with %s", c.session.RemoteName))
	case protocol.Text:
		c.presenter.ChatMessage(fmt.Sprintf("%s: %s", c.session.RemoteName, e.Body))
	case protocol.Buzz:
		c.presenter.Alert()
	case protocol.Image:
		c.presenter.Image(e.Data, c.session.RemoteName)
	case protocol.Location:
		c.session.SetRemoteLocation(e.Coordinates)
		c.presenter.SystemNotice(fmt.Sprintf("📍 %s sent their location.", c.session.RemoteName))
		c.reportDistanceLocked()
	case protocol.End:
		c.presenter.SystemNotice(e.Notice)
	}
}

func (c *Controller) handleClose(conn transport.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn != c.conn {
		return
	}

	name := c.session.RemoteName
	if name == session.UnknownName {
		name = conn.PeerID()
	}
	wasOpen := c.opened

	c.conn = nil
	c.announced = false
	c.opened = false
	c.session.ForgetRemote()
	c.state = StateAdvertising
	_ = conn.Close()

	c.logger.Infof("Connection to %s closed", conn.PeerID())
	if wasOpen {
		c.presenter.SystemNotice(fmt.Sprintf("%s disconnected.", name))
	} else {
		c.presenter.SystemNotice(fmt.Sprintf("Could not connect to %s.", name))
	}
}

func (c *Controller) handleError(conn transport.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn != c.conn {
		return
	}

	// Only an error on an open connection ends the chat. A connection that
	// never opened is dropped and the identity stays advertised.
	if c.opened {
		_ = c.failLocked(fmt.Errorf("%w: %w", ErrTransport, err))
		c.teardownLocked(false)
		return
	}

	c.conn = nil
	c.announced = false
	c.session.ForgetRemote()
	c.state = StateAdvertising
	_ = conn.Close()
	_ = c.failLocked(fmt.Errorf("%w: connection to %s failed: %w", ErrTransport, conn.PeerID(), err))
}

func (c *Controller) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return c.fail(fmt.Errorf("%w: empty message", ErrInvalidInput))
	}
	return c.send(protocol.Text{Body: text})
}

func (c *Controller) SendBuzz() error {
	return c.send(protocol.Buzz{})
}

func (c *Controller) SendPhoto(data []byte) error {
	if len(data) == 0 {
		return c.fail(fmt.Errorf("%w: empty photo", ErrInvalidInput))
	}
	return c.send(protocol.Image{Data: data})
}

func (c *Controller) SendLocation(coords geo.Coordinates) error {
	return c.send(protocol.Location{Coordinates: coords})
}

// ShareLocation sends the position reported by the geolocator.
func (c *Controller) ShareLocation(ctx context.Context) error {
	if c.State() != StateConnected {
		return c.fail(ErrNotConnected)
	}
	if c.geolocator == nil {
		return c.fail(fmt.Errorf("%w: no position source", ErrMediaUnavailable))
	}

	pos, err := c.geolocator.CurrentPosition(ctx)
	if err != nil {
		return c.fail(fmt.Errorf("%w: %w", ErrMediaUnavailable, err))
	}
	return c.SendLocation(pos)
}

func (c *Controller) send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected || c.conn == nil || !c.conn.IsOpen() {
		return c.failLocked(ErrNotConnected)
	}
	if err := c.sendLocked(env); err != nil {
		return c.failLocked(err)
	}

	c.echoLocked(env)
	return nil
}

// sendLocked writes env to the current connection. A failed write tears
// the chat down.
func (c *Controller) sendLocked(env protocol.Envelope) error {
	data, err := c.codec.EncodeToBytes(env)
	if err != nil {
		if errors.Is(err, protocol.ErrTooLarge) || errors.Is(err, protocol.ErrMalformed) {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return err
	}

	conn := c.conn
	if err := conn.Send(data); err != nil {
		c.logger.Warnf("Failed to send %s to %s: %v", env.Type(), conn.PeerID(), err)
		c.teardownLocked(false)
		return fmt.Errorf("%w: send %s: %w", ErrTransport, env.Type(), err)
	}

	c.logger.Debugf("Sent %s to %s", env.Type(), conn.PeerID())
	return nil
}

// echoLocked applies an outbound envelope locally the way the peer
// applies it.
func (c *Controller) echoLocked(env protocol.Envelope) {
	me := fmt.Sprintf("Me (%s)", c.session.LocalName)

	switch e := env.(type) {
	case protocol.Text:
		c.presenter.ChatMessage(fmt.Sprintf("%s: %s", me, e.Body))
	case protocol.Buzz:
		c.presenter.Alert()
	case protocol.Image:
		c.presenter.Image(e.Data, me)
	case protocol.Location:
		c.session.SetLocalLocation(e.Coordinates)
		c.presenter.SystemNotice("📍 Location sent.")
		c.reportDistanceLocked()
	}
}

func (c *Controller) reportDistanceLocked() {
	if km, ok := c.session.Distance(); ok {
		c.presenter.Distance(km)
	}
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failLocked(err)
}

func (c *Controller) failLocked(err error) error {
	c.logger.Debugf("Chat operation failed: %v", err)
	c.presenter.SystemNotice(fmt.Sprintf("⚠ %v", err))
	return err
}
