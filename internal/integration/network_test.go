package integration

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-chat/internal/chat"
	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/media"
	"github.com/rudransh-shrivastava/peer-chat/internal/rendezvous"
	"github.com/rudransh-shrivastava/peer-chat/internal/signaling"
	"github.com/rudransh-shrivastava/peer-chat/internal/transport/webrtc"
)

// Network is a rendezvous server plus any number of chat clients wired
// with the real signaling client and WebRTC transport.
type Network struct {
	server  *rendezvous.Server
	clients []*chat.Controller
	cancel  context.CancelFunc
	ctx     context.Context
	done    chan struct{}
	log     *logrus.Logger
	t       *testing.T
}

func NewNetwork(t *testing.T) *Network {
	t.Helper()

	log := logger.New(io.Discard, "info")
	if testing.Verbose() {
		log = logger.NewLogger()
	}

	srv, err := rendezvous.NewServer(rendezvous.Config{
		Addr:   "127.0.0.1:0",
		Logger: log,
	})
	if err != nil {
		t.Fatalf("Failed to create rendezvous server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	n := &Network{
		server: srv,
		cancel: cancel,
		ctx:    ctx,
		done:   make(chan struct{}),
		log:    log,
		t:      t,
	}
	go func() {
		_ = srv.Start(ctx)
		close(n.done)
	}()

	t.Cleanup(n.Close)
	return n
}

func (n *Network) URL() string {
	return "ws://" + n.server.Addr() + rendezvous.SignalingPath
}

// NewClient builds a controller that renders into the returned recorder.
func (n *Network) NewClient(pos *media.StaticGeolocator) (*chat.Controller, *Recorder) {
	n.t.Helper()

	rec := &Recorder{}
	ctrl := chat.NewController(chat.Config{
		Rendezvous: webrtc.New(signaling.NewClient(n.URL(), n.log), nil, n.log),
		Presenter:  rec,
		Camera:     media.NewDirectoryCamera(nil),
		Geolocator: pos,
		Logger:     n.log,
	})

	n.clients = append(n.clients, ctrl)
	return ctrl, rec
}

func (n *Network) Context() context.Context {
	return n.ctx
}

func (n *Network) Close() {
	for _, c := range n.clients {
		c.Teardown()
	}
	n.cancel()
	<-n.done
}

// Recorder is a Presenter that keeps every line it is given.
type Recorder struct {
	mu     sync.Mutex
	lines  []string
	images int
	alerts int
}

func (r *Recorder) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *Recorder) SystemNotice(text string) { r.add(text) }
func (r *Recorder) ChatMessage(text string)  { r.add(text) }

func (r *Recorder) Image(data []byte, sender string) {
	r.mu.Lock()
	r.images++
	r.mu.Unlock()
	r.add(fmt.Sprintf("image from %s (%d bytes)", sender, len(data)))
}

func (r *Recorder) Alert() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts++
}

func (r *Recorder) Distance(km float64) {
	r.add(fmt.Sprintf("distance %.2f", km))
}

func (r *Recorder) Has(line string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.lines {
		if l == line {
			return true
		}
	}
	return false
}

func (r *Recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}

func (r *Recorder) Alerts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alerts
}
