package rendezvous

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudransh-shrivastava/peer-chat/internal/signaling"
	"github.com/rudransh-shrivastava/peer-chat/internal/transport"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupServer(t *testing.T) *Server {
	t.Helper()
	return startServer(t, Config{Addr: "127.0.0.1:0", Logger: quietLogger()})
}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return srv
}

func setupClient(t *testing.T, srv *Server) *signaling.Client {
	t.Helper()

	c := signaling.NewClient("ws://"+srv.Addr()+SignalingPath, quietLogger())
	t.Cleanup(func() { _ = c.Release() })
	return c
}

func register(t *testing.T, c *signaling.Client, id string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assigned, err := c.Register(ctx, id)
	if err != nil {
		t.Fatalf("Register %q failed: %v", id, err)
	}
	return assigned
}

func nextSignal(t *testing.T, c *signaling.Client) transport.Signal {
	t.Helper()

	select {
	case sig, ok := <-c.Signals():
		if !ok {
			t.Fatal("signals channel closed")
		}
		return sig
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
	return transport.Signal{}
}

func getBody(t *testing.T, url string) string {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return string(body)
}

func TestNewServer(t *testing.T) {
	srv := setupServer(t)

	if srv.Addr() == "" {
		t.Error("Expected non-empty address")
	}
	assert.Equal(t, "ok\n", getBody(t, "http://"+srv.Addr()+"/healthz"))
}

func TestNewServerListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	_, err = NewServer(Config{Addr: busy.Addr().String(), Logger: quietLogger()})
	assert.Error(t, err)
}

func TestStartupClearsStaleDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	stale := NewPeerStore(db)
	require.NoError(t, stale.CreatePeer("alice", "10.0.0.1:4000"))
	require.NoError(t, stale.Close())

	srv := startServer(t, Config{Addr: "127.0.0.1:0", DBPath: path, Logger: quietLogger()})
	peers, err := srv.peers.GetPeers()
	require.NoError(t, err)
	assert.Empty(t, peers)

	alice := setupClient(t, srv)
	register(t, alice, "alice")

	peers, err = srv.peers.GetPeers()
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "alice", peers[0].PeerID)
	assert.NotEqual(t, "10.0.0.1:4000", peers[0].RemoteAddr)
}

func TestRegisterListsPeer(t *testing.T) {
	srv := setupServer(t)
	alice := setupClient(t, srv)

	if got := register(t, alice, "alice"); got != "alice" {
		t.Errorf("Expected alice, got %s", got)
	}
	assert.Equal(t, "alice", alice.ID())
	assert.Equal(t, []string{"alice"}, srv.registry.IDs())
	assert.Contains(t, getBody(t, "http://"+srv.Addr()+"/peers"), "alice")
}

func TestRegisterDuplicateRejected(t *testing.T) {
	srv := setupServer(t)
	register(t, setupClient(t, srv), "alice")

	_, err := setupClient(t, srv).Register(context.Background(), "alice")
	if !errors.Is(err, signaling.ErrIDTaken) {
		t.Errorf("Expected ErrIDTaken, got %v", err)
	}
}

func TestRegisterTwiceOnOneClient(t *testing.T) {
	srv := setupServer(t)
	alice := setupClient(t, srv)
	register(t, alice, "alice")

	_, err := alice.Register(context.Background(), "alice2")
	assert.ErrorIs(t, err, signaling.ErrAlreadyRegistered)
}

func TestRegisterGeneratesID(t *testing.T) {
	srv := setupServer(t)

	id := register(t, setupClient(t, srv), "")
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Expected generated UUID, got %q", id)
	}
}

func TestRegisterInvalidID(t *testing.T) {
	srv := setupServer(t)

	_, err := setupClient(t, srv).Register(context.Background(), "two words")
	assert.ErrorIs(t, err, signaling.ErrInvalidID)
	assert.Zero(t, srv.registry.Len())
}

func TestRelayOfferAndAnswer(t *testing.T) {
	srv := setupServer(t)
	alice := setupClient(t, srv)
	bob := setupClient(t, srv)
	register(t, alice, "alice")
	register(t, bob, "bob")

	ctx := context.Background()
	require.NoError(t, alice.SendSignal(ctx, transport.Signal{
		Kind: transport.SignalOffer, PeerID: "bob", ConnectionID: "c1", Payload: []byte("offer-sdp"),
	}))

	sig := nextSignal(t, bob)
	assert.Equal(t, transport.SignalOffer, sig.Kind)
	assert.Equal(t, "alice", sig.PeerID)
	assert.Equal(t, "c1", sig.ConnectionID)
	assert.Equal(t, "offer-sdp", string(sig.Payload))

	require.NoError(t, bob.SendSignal(ctx, transport.Signal{
		Kind: transport.SignalAnswer, PeerID: "alice", ConnectionID: "c1", Payload: []byte("answer-sdp"),
	}))

	sig = nextSignal(t, alice)
	assert.Equal(t, transport.SignalAnswer, sig.Kind)
	assert.Equal(t, "bob", sig.PeerID)
	assert.Equal(t, "answer-sdp", string(sig.Payload))

	require.NoError(t, alice.SendSignal(ctx, transport.Signal{Kind: transport.SignalLeave, PeerID: "bob", ConnectionID: "c1"}))
	sig = nextSignal(t, bob)
	assert.Equal(t, transport.SignalLeave, sig.Kind)
}

func TestRelayToUnknownPeer(t *testing.T) {
	srv := setupServer(t)
	alice := setupClient(t, srv)
	register(t, alice, "alice")

	require.NoError(t, alice.SendSignal(context.Background(), transport.Signal{
		Kind: transport.SignalOffer, PeerID: "nobody", ConnectionID: "c9", Payload: []byte("sdp"),
	}))

	sig := nextSignal(t, alice)
	assert.Equal(t, transport.SignalFailure, sig.Kind)
	assert.Equal(t, "c9", sig.ConnectionID)
	assert.ErrorIs(t, sig.Err, transport.ErrPeerUnavailable)
}

func TestReleaseFreesIdentity(t *testing.T) {
	srv := setupServer(t)
	alice := setupClient(t, srv)
	register(t, alice, "alice")

	require.NoError(t, alice.Release())
	assert.Empty(t, alice.ID())

	_, open := <-alice.Signals()
	assert.False(t, open)

	again := setupClient(t, srv)
	require.Eventually(t, func() bool {
		_, err := again.Register(context.Background(), "alice")
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		peers, err := srv.peers.GetPeers()
		return err == nil && len(peers) == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSendSignalRequiresRegistration(t *testing.T) {
	srv := setupServer(t)
	c := setupClient(t, srv)

	err := c.SendSignal(context.Background(), transport.Signal{Kind: transport.SignalOffer, PeerID: "bob"})
	assert.ErrorIs(t, err, signaling.ErrNotRegistered)
}
