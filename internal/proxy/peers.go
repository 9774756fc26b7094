package proxy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iho/playerbank/internal/infrastructure/metrics"
)

// ErrNoPeerAvailable is returned by Send when no transport peer is
// connected. Callers fail the pending operation instead of waiting
// for a peer to appear.
var ErrNoPeerAvailable = errors.New("no transport peer available")

// Peer is one connected endpoint able to carry protocol frames.
type Peer interface {
	Name() string
	Send(frame []byte) error
}

// PeerRegistry tracks connected peers explicitly. Send dispatches a
// frame through the first healthy peer in registration order and
// reports a clear error when none is connected.
type PeerRegistry struct {
	mu      sync.RWMutex
	peers   map[string]Peer
	order   []string
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewPeerRegistry creates a peer registry. Metrics may be nil.
func NewPeerRegistry(m *metrics.Metrics, log zerolog.Logger) *PeerRegistry {
	return &PeerRegistry{
		peers:   make(map[string]Peer),
		metrics: m,
		log:     log,
	}
}

// Add registers a connected peer, replacing a stale one of the same
// name.
func (r *PeerRegistry) Add(peer Peer) {
	r.mu.Lock()
	if _, ok := r.peers[peer.Name()]; !ok {
		r.order = append(r.order, peer.Name())
	}
	r.peers[peer.Name()] = peer
	count := len(r.peers)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ConnectedPeers.Set(float64(count))
	}
	r.log.Info().Str("peer", peer.Name()).Int("connected", count).Msg("transport peer connected")
}

// Remove unregisters a peer.
func (r *PeerRegistry) Remove(name string) {
	r.mu.Lock()
	if _, ok := r.peers[name]; ok {
		delete(r.peers, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	count := len(r.peers)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ConnectedPeers.Set(float64(count))
	}
	r.log.Info().Str("peer", name).Int("connected", count).Msg("transport peer disconnected")
}

// Count returns the number of connected peers.
func (r *PeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Send writes a frame through one connected peer, trying peers in
// registration order until one accepts it.
func (r *PeerRegistry) Send(frame []byte) error {
	r.mu.RLock()
	ordered := make([]Peer, 0, len(r.order))
	for _, name := range r.order {
		ordered = append(ordered, r.peers[name])
	}
	r.mu.RUnlock()

	if len(ordered) == 0 {
		return ErrNoPeerAvailable
	}

	var lastErr error
	for _, peer := range ordered {
		if err := peer.Send(frame); err != nil {
			lastErr = err
			r.log.Warn().Err(err).Str("peer", peer.Name()).Msg("frame send failed, trying next peer")
			continue
		}
		return nil
	}
	return fmt.Errorf("all %d peers failed: %w", len(ordered), lastErr)
}

// wsPeer adapts a websocket connection to the Peer interface.
// Gorilla connections allow one concurrent writer, hence the mutex.
type wsPeer struct {
	name string
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebsocketPeer wraps a websocket connection as a peer.
func NewWebsocketPeer(name string, conn *websocket.Conn) Peer {
	return &wsPeer{name: name, conn: conn}
}

func (p *wsPeer) Name() string { return p.name }

func (p *wsPeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.BinaryMessage, frame)
}
