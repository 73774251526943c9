package main

import (
	"sync"

	"go.uber.org/zap"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub manages all connected clients and owns the room registry
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	rooms      *RoomManager
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
	// Persistence & tickets
	db        *DB
	auth      *Auth
	analytics *Analytics
	publicURL string
	origins   []string
}

// NewHub creates a new Hub. db may be nil.
func NewHub(cfg Config, db *DB) *Hub {
	analytics := NewAnalytics(db)
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client, 64),
		rooms:      NewRoomManager(cfg.MaxRooms, cfg.RoomIdleTimeout, analytics),
		ipConns:    make(map[string]int),
		db:         db,
		auth:       NewAuth(db),
		analytics:  analytics,
		publicURL:  cfg.PublicURL,
		origins:    cfg.AllowedOrigins,
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.detach(client)
		}
	}
}

// detach removes a closed client from its room. The player is soft-deleted
// unless they still have another live connection to the room.
func (h *Hub) detach(c *Client) {
	room, err := h.rooms.Get(c.roomID)
	if err != nil {
		return
	}
	if room.RemoveConn(c) {
		return
	}
	if err := room.Game.MarkPlayerDeleted(c.playerID); err != nil {
		logger.Debug("disconnect of unknown player",
			zap.String("room", c.roomID), zap.String("player", c.playerID), zap.Error(err))
		return
	}
	room.flushEvents(h.analytics)
}

// Shutdown stops every room engine and flushes analytics
func (h *Hub) Shutdown() {
	h.rooms.StopAll()
	h.analytics.Stop()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
