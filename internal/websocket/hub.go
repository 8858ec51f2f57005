package websocket

import (
	"context"
	"sync"

	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/pkg/chatbot"
)

// Peer is one live connection, raw or managed.
type Peer interface {
	ID() string
	SessionID() string
	// Send queues ev for writing. It reports false once the peer is closing.
	Send(ev chatbot.Event) bool
	// Close starts a server-initiated close with the given status code.
	Close(code uint16, reason string)
}

// Hub tracks every open connection of both transports.
type Hub struct {
	// Registered peers: connection id -> peer
	peers map[string]Peer

	register   chan Peer
	unregister chan Peer
	done       chan struct{}

	mu sync.RWMutex

	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		peers:      make(map[string]Peer),
		register:   make(chan Peer),
		unregister: make(chan Peer),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Run processes registrations until ctx is done. Register and Unregister
// return immediately afterwards.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return

		case peer := <-h.register:
			h.mu.Lock()
			h.peers[peer.ID()] = peer
			h.mu.Unlock()
			h.logger.Info("Hub", "Peer registered", map[string]interface{}{
				"connection_id": peer.ID(),
				"session_id":    peer.SessionID(),
			})

		case peer := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.peers[peer.ID()]; ok {
				delete(h.peers, peer.ID())
				h.logger.Info("Hub", "Peer unregistered", map[string]interface{}{
					"connection_id": peer.ID(),
					"session_id":    peer.SessionID(),
				})
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(p Peer) {
	select {
	case h.register <- p:
	case <-h.done:
	}
}

func (h *Hub) Unregister(p Peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// Count returns the number of registered peers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Broadcast sends ev to every registered peer and returns how many accepted it.
func (h *Hub) Broadcast(ev chatbot.Event) int {
	sent := 0
	for _, p := range h.snapshot() {
		if p.Send(ev) {
			sent++
		} else {
			h.logger.Warn("Hub", "Peer did not accept broadcast", map[string]interface{}{"connection_id": p.ID()})
		}
	}
	return sent
}

// CloseAll starts closing every registered peer.
func (h *Hub) CloseAll(code uint16, reason string) {
	for _, p := range h.snapshot() {
		p.Close(code, reason)
	}
}

func (h *Hub) snapshot() []Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	peers := make([]Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	return peers
}
