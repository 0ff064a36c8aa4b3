// Package rendezvous implements the signaling server chat clients
// register with and exchange session descriptions through.
package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-chat/internal/signaling"
)

const (
	SignalingPath = "/peerjs"
	maxIDLength   = 64
	registerWait  = 10 * time.Second
)

type Server struct {
	config     Config
	logger     *logrus.Logger
	registry   *Registry
	peers      *PeerStore
	listener   net.Listener
	httpServer *http.Server
}

func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	db, err := NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open peer directory: %w", err)
	}
	peers := NewPeerStore(db)

	// Rows left by an earlier run name peers that are no longer connected.
	if err := peers.Clear(); err != nil {
		_ = peers.Close()
		return nil, fmt.Errorf("failed to clear peer directory: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = peers.Close()
		return nil, err
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		registry: NewRegistry(),
		peers:    peers,
		listener: listener,
	}
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Handler routes the signaling endpoint and the peer listing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SignalingPath, s.handleSignaling)
	mux.HandleFunc("/peers", s.handlePeers)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, "ok")
	})
	return mux
}

// Start serves until ctx is done or the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Infof("Rendezvous server started on %s", s.Addr())

	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down rendezvous server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	_ = s.listener.Close()
	for _, id := range s.registry.IDs() {
		if c, ok := s.registry.Get(id); ok {
			_ = c.conn.Close()
		}
	}
	return errors.Join(err, s.peers.Close())
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	peers, err := s.peers.GetPeers()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Address", "Since"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, p := range peers {
		table.Append([]string{p.PeerID, p.RemoteAddr, time.Unix(p.ConnectedAt, 0).Format(time.RFC3339)})
	}
	table.Render()
}

func (s *Server) handleSignaling(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warnf("Failed to upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	s.handleClient(conn, r.RemoteAddr)
}

func (s *Server) handleClient(conn net.Conn, remoteAddr string) {
	defer func() { _ = conn.Close() }()

	c, err := s.register(conn, remoteAddr)
	if err != nil {
		s.logger.Debugf("Registration from %s failed: %v", remoteAddr, err)
		return
	}

	s.logger.Infof("Peer %s registered from %s", c.id, remoteAddr)
	defer func() {
		if err := s.peers.DeletePeer(c.id); err != nil {
			s.logger.Warnf("Failed to delete %s from directory: %v", c.id, err)
		}
		s.registry.Remove(c)
		s.logger.Infof("Peer %s disconnected", c.id)
	}()

	for {
		f, err := signaling.ReadFrame(conn, ws.StateServerSide)
		if err != nil {
			if errors.Is(err, signaling.ErrBadFrame) {
				_ = c.send(signaling.BuildErrorFrame(signaling.CodeBadFrame, "", err.Error()))
				continue
			}
			return
		}
		s.handleFrame(c, f)
	}
}

// register reads the register frame and claims the requested identity.
func (s *Server) register(conn net.Conn, remoteAddr string) (*client, error) {
	_ = conn.SetReadDeadline(time.Now().Add(registerWait))
	f, err := signaling.ReadFrame(conn, ws.StateServerSide)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &client{conn: conn, remoteAddr: remoteAddr}

	if f.Type != signaling.FrameRegister {
		_ = c.send(signaling.BuildErrorFrame(signaling.CodeNotRegistered, f.ConnectionID, "register first"))
		return nil, signaling.ErrNotRegistered
	}

	id := strings.TrimSpace(f.Src)
	if id == "" {
		id = uuid.NewString()
	}
	if !validID(id) {
		_ = c.send(signaling.BuildErrorFrame(signaling.CodeInvalidID, "", fmt.Sprintf("%q is not a valid id", id)))
		return nil, signaling.ErrInvalidID
	}

	c.id = id
	if !s.registry.Add(c) {
		_ = c.send(signaling.BuildErrorFrame(signaling.CodeIDTaken, "", fmt.Sprintf("%s is taken", id)))
		return nil, signaling.ErrIDTaken
	}

	if err := s.peers.CreatePeer(id, remoteAddr); err != nil {
		s.logger.Warnf("Failed to add %s to directory: %v", id, err)
	}

	if err := c.send(signaling.BuildRegisteredFrame(id)); err != nil {
		s.registry.Remove(c)
		_ = s.peers.DeletePeer(id)
		return nil, err
	}
	return c, nil
}

func (s *Server) handleFrame(c *client, f signaling.Frame) {
	switch f.Type {
	case signaling.FrameOffer, signaling.FrameAnswer, signaling.FrameLeave:
		s.relay(c, f)
	case signaling.FrameRegister:
		_ = c.send(signaling.BuildErrorFrame(signaling.CodeBadFrame, "", "already registered as "+c.id))
	default:
		s.logger.Warnf("Unhandled frame type %s from %s", f.Type, c.id)
		_ = c.send(signaling.BuildErrorFrame(signaling.CodeBadFrame, f.ConnectionID, "unexpected "+string(f.Type)))
	}
}

// relay forwards f to its destination with the sender's identity stamped.
func (s *Server) relay(from *client, f signaling.Frame) {
	dst, ok := s.registry.Get(f.Dst)
	if !ok {
		if f.Type == signaling.FrameLeave {
			return
		}
		s.logger.Debugf("%s from %s to unknown peer %s", f.Type, from.id, f.Dst)
		_ = from.send(signaling.BuildErrorFrame(signaling.CodePeerUnavailable, f.ConnectionID, fmt.Sprintf("%s is not available", f.Dst)))
		return
	}

	f.Src = from.id
	s.logger.Debugf("Relaying %s %s from %s to %s", f.Type, f.ConnectionID, from.id, dst.id)
	if err := dst.send(f); err != nil {
		s.logger.Warnf("Failed to relay %s to %s: %v", f.Type, dst.id, err)
		if f.Type != signaling.FrameLeave {
			_ = from.send(signaling.BuildErrorFrame(signaling.CodePeerUnavailable, f.ConnectionID, err.Error()))
		}
	}
}

func validID(id string) bool {
	if len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
