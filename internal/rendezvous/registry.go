package rendezvous

import (
	"net"
	"slices"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/samber/lo"

	"github.com/rudransh-shrivastava/peer-chat/internal/signaling"
)

const writeTimeout = 5 * time.Second

// client is one registered signaling connection.
type client struct {
	id         string
	conn       net.Conn
	remoteAddr string

	mu sync.Mutex
}

func (c *client) send(f signaling.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return signaling.WriteFrame(c.conn, ws.StateServerSide, f)
}

// Registry maps live identities to their connections. It is the authority
// for identity uniqueness.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*client)}
}

// Add registers c under c.id and reports false if the id is taken.
func (r *Registry) Add(c *client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[c.id]; exists {
		return false
	}
	r.clients[c.id] = c
	return true
}

// Remove deletes the entry for c.id if it still belongs to c.
func (r *Registry) Remove(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clients[c.id] == c {
		delete(r.clients, c.id)
	}
}

func (r *Registry) Get(id string) (*client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	return c, ok
}

func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := lo.Keys(r.clients)
	slices.Sort(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
