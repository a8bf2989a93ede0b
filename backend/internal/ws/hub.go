package ws

import (
	"sync"

	"transcriptServer/backend/internal/cache"
)

// Hub groups connections by transcript for broadcasting.
type Hub struct {
	mu sync.RWMutex
	// transcriptID -> connections; one user may hold several
	rooms map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

// Join adds c to the room of id and reports whether it was the first member.
func (h *Hub) Join(id string, c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	first := h.rooms[id] == nil
	if first {
		h.rooms[id] = make(map[*Conn]struct{})
	}
	h.rooms[id][c] = struct{}{}
	return first
}

// Leave removes c from the room of id.
func (h *Hub) Leave(id string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[id]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, id)
		}
	}
}

// Size returns the number of connections on id.
func (h *Hub) Size(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[id])
}

// Broadcast sends msg to every connection on id except skip, which may be nil.
func (h *Hub) Broadcast(id string, msg ServerMessage, skip *Conn) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[id]))
	for c := range h.rooms[id] {
		if c != skip {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Enqueue(msg)
	}
}

func (h *Hub) BroadcastPresence(id string, members []cache.PresenceMember) {
	out := make([]PresenceMember, len(members))
	for i, m := range members {
		out[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
	}
	h.Broadcast(id, ServerMessage{Type: TypePresence, TranscriptID: id, Members: out}, nil)
}
