package signaling

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

var ErrAlreadyRegistered = errors.New("already registered")

const (
	registerTimeout = 10 * time.Second
	signalBuffer    = 64
)

// Client is a transport.Signaler talking to the rendezvous server over a
// WebSocket. One registration is active at a time.
type Client struct {
	url    string
	logger *logrus.Logger

	mu      sync.Mutex
	conn    net.Conn
	rw      io.ReadWriter
	id      string
	signals chan transport.Signal

	writeMu sync.Mutex
}

func NewClient(url string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{url: url, logger: logger}
}

// ID returns the registered identity, or "" when not registered.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) Register(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return "", ErrAlreadyRegistered
	}

	conn, br, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		return "", fmt.Errorf("failed to dial %s: %w", c.url, err)
	}

	var rw io.ReadWriter = conn
	if br != nil {
		rw = bufferedConn{Reader: br, Writer: conn}
	}

	deadline := time.Now().Add(registerTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := WriteFrame(conn, ws.StateClientSide, BuildRegisterFrame(id)); err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("failed to send register: %w", err)
	}

	reply, err := ReadFrame(rw, ws.StateClientSide)
	if err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("failed to read registration reply: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	switch reply.Type {
	case FrameRegistered:
	case FrameError:
		_ = conn.Close()
		return "", reply.Err()
	default:
		_ = conn.Close()
		return "", fmt.Errorf("%w: unexpected %s reply to register", ErrBadFrame, reply.Type)
	}

	c.conn = conn
	c.rw = rw
	c.id = reply.Src
	c.signals = make(chan transport.Signal, signalBuffer)
	go c.readLoop(conn, rw, c.signals)

	c.logger.Infof("Registered with %s as %s", c.url, reply.Src)
	return reply.Src, nil
}

func (c *Client) Signals() <-chan transport.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signals
}

func (c *Client) SendSignal(ctx context.Context, sig transport.Signal) error {
	var f Frame
	switch sig.Kind {
	case transport.SignalOffer:
		f = BuildOfferFrame(sig.PeerID, sig.ConnectionID, string(sig.Payload))
	case transport.SignalAnswer:
		f = BuildAnswerFrame(sig.PeerID, sig.ConnectionID, string(sig.Payload))
	case transport.SignalLeave:
		f = BuildLeaveFrame(sig.PeerID, sig.ConnectionID)
	default:
		return fmt.Errorf("cannot send %s signal", sig.Kind)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotRegistered
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if d, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(d)
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
	}
	return WriteFrame(conn, ws.StateClientSide, f)
}

// Release closes the WebSocket, which ends the registration on the
// server. The signals channel is closed once the read loop exits.
func (c *Client) Release() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.rw = nil
	c.id = ""
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = wsutil.WriteClientMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.writeMu.Unlock()

	return conn.Close()
}

func (c *Client) readLoop(conn net.Conn, rw io.ReadWriter, signals chan<- transport.Signal) {
	defer close(signals)

	for {
		f, err := ReadFrame(rw, ws.StateClientSide)
		if err != nil {
			if errors.Is(err, ErrBadFrame) {
				c.logger.Warnf("Ignoring signaling frame: %v", err)
				continue
			}
			c.logger.Debugf("Signaling connection closed: %v", err)
			c.dropConn(conn)
			return
		}

		sig, ok := toSignal(f)
		if !ok {
			c.logger.Warnf("Unexpected %s frame from server", f.Type)
			continue
		}
		signals <- sig
	}
}

// dropConn forgets conn if it is still the current registration.
func (c *Client) dropConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		_ = conn.Close()
		c.conn = nil
		c.rw = nil
		c.id = ""
	}
}

func toSignal(f Frame) (transport.Signal, bool) {
	sig := transport.Signal{PeerID: f.Src, ConnectionID: f.ConnectionID, Payload: f.Payload}

	switch f.Type {
	case FrameOffer:
		sig.Kind = transport.SignalOffer
	case FrameAnswer:
		sig.Kind = transport.SignalAnswer
	case FrameLeave:
		sig.Kind = transport.SignalLeave
	case FrameError:
		sig.Kind = transport.SignalFailure
		sig.Err = f.Err()
	default:
		return transport.Signal{}, false
	}
	return sig, true
}

type bufferedConn struct {
	*bufio.Reader
	io.Writer
}
