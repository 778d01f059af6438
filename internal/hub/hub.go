// Package hub implements the broker's peer registry and broadcast fan-out.
// Unlike a buffered backpressure hub, the dispatcher writes directly to
// each peer's connection and prunes any peer whose write fails; there is
// no per-peer queue to overflow.
package hub

import (
	"net"
	"sync"

	"github.com/purplemass/midi-fabric/internal/identity"
	"github.com/purplemass/midi-fabric/internal/logging"
	"github.com/purplemass/midi-fabric/internal/metrics"
	"github.com/purplemass/midi-fabric/internal/wire"
)

// Peer is one connected broker client.
type Peer struct {
	ID        identity.ClientId
	Conn      net.Conn
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close marks the peer closed (idempotent). Safe to call from any goroutine.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.Closed)
		_ = p.Conn.Close()
	})
}

// Hub tracks connected peers and fans frames out to all of them.
type Hub struct {
	mu    sync.RWMutex
	peers map[*Peer]struct{}
}

// New creates an empty Hub.
func New() *Hub { return &Hub{peers: make(map[*Peer]struct{})} }

// Add registers a peer with the hub.
func (h *Hub) Add(p *Peer) {
	h.mu.Lock()
	prev := len(h.peers)
	h.peers[p] = struct{}{}
	cur := len(h.peers)
	h.mu.Unlock()
	metrics.SetHubPeers(cur)
	if prev == 0 && cur == 1 {
		logging.L().Info("peers_first_connected")
	}
}

// Remove unregisters a peer; safe to call multiple times.
func (h *Hub) Remove(p *Peer) {
	h.mu.Lock()
	_, existed := h.peers[p]
	if existed {
		delete(h.peers, p)
	}
	cur := len(h.peers)
	h.mu.Unlock()
	p.Close()
	metrics.SetHubPeers(cur)
	if existed && cur == 0 {
		logging.L().Info("peers_last_disconnected")
	}
}

// Broadcast writes fr to every connected peer and prunes any peer whose
// write fails before returning, so it is gone by the next dispatch. Broadcast
// includes the originating peer; loopback suppression happens client-side
// by ClientId comparison.
func (h *Hub) Broadcast(fr wire.Frame) {
	peers := h.Snapshot()
	metrics.SetBroadcastFanout(len(peers))
	var failed []*Peer
	for _, p := range peers {
		if _, err := p.Conn.Write(fr[:]); err != nil {
			metrics.IncError(metrics.ErrTCPWrite)
			failed = append(failed, p)
			continue
		}
		metrics.IncBrokerFramesOut()
	}
	for _, p := range failed {
		metrics.IncHubDrop()
		h.Remove(p)
	}
}

// Snapshot returns a slice copy of current peers (read-only use).
func (h *Hub) Snapshot() []*Peer {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()
	return peers
}

// Count returns the number of active peers.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.peers); h.mu.RUnlock(); return n }
