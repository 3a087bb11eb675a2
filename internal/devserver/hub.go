package devserver

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub tracks push connections by user and by joined room. All state is
// guarded by one mutex; frames are queued on each connection's send buffer
// and written by its write pump.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*socketConn]struct{}
	rooms map[string]map[*socketConn]struct{}

	metrics *Metrics
	log     *zap.Logger
}

func NewHub(metrics *Metrics, log *zap.Logger) *Hub {
	return &Hub{
		users:   make(map[string]map[*socketConn]struct{}),
		rooms:   make(map[string]map[*socketConn]struct{}),
		metrics: metrics,
		log:     log,
	}
}

func (h *Hub) register(c *socketConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.users[c.userID] == nil {
		h.users[c.userID] = make(map[*socketConn]struct{})
	}
	h.users[c.userID][c] = struct{}{}
	h.metrics.connections.Inc()
	h.log.Debug("ws_registered", zap.String("user_id", c.userID), zap.Int("user_conns", len(h.users[c.userID])))
}

// unregister removes c everywhere and closes its send buffer. Safe to call
// after the hub already dropped c.
func (h *Hub) unregister(c *socketConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *socketConn) {
	conns := h.users[c.userID]
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	for room := range c.rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.send)
	h.metrics.connections.Dec()

	if len(conns) == 0 {
		delete(h.users, c.userID)
	}
}

func (h *Hub) join(c *socketConn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*socketConn]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *socketConn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(c.rooms, room)
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Online reports whether the user has at least one open connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// RoomSize is the number of connections joined to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ToRoom queues payload to every connection joined to room except those
// belonging to exceptUser.
func (h *Hub) ToRoom(room, exceptUser string, f serverFrame) {
	data, ok := h.encode(f)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[room] {
		if c.userID == exceptUser {
			continue
		}
		h.deliverLocked(c, data, f.Type)
	}
}

// ToUsers queues payload to every connection of the given users.
func (h *Hub) ToUsers(userIDs []string, f serverFrame) {
	data, ok := h.encode(f)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, uid := range userIDs {
		for c := range h.users[uid] {
			h.deliverLocked(c, data, f.Type)
		}
	}
}

// deliverLocked drops a connection whose buffer is full rather than
// blocking every other recipient.
func (h *Hub) deliverLocked(c *socketConn, data []byte, typ string) {
	select {
	case c.send <- data:
		h.metrics.frames.WithLabelValues("out", typ).Inc()
	default:
		h.log.Warn("ws_send_buffer_full", zap.String("user_id", c.userID))
		h.dropLocked(c)
	}
}

func (h *Hub) encode(f serverFrame) ([]byte, bool) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.Error("ws_encode_failed", zap.String("type", f.Type), zap.Error(err))
		return nil, false
	}
	return data, true
}

// toConn queues a frame for one connection if it is still registered.
func (h *Hub) toConn(c *socketConn, f serverFrame) {
	data, ok := h.encode(f)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[c.userID][c]; ok {
		h.deliverLocked(c, data, f.Type)
	}
}
