package hub

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"

	"codemate-server/domain"
)

// room keeps members in join order so rosters are stable across queries.
type room struct {
	members []string
}

// Hub is the room membership index. It also holds the attached connections so
// room-scoped and unicast sends can be resolved by connection id.
type Hub struct {
	conns       map[string]domain.Connection
	rooms       map[string]*room
	memberships map[string]map[string]struct{}
	mu          sync.RWMutex
}

func New() *Hub {
	return &Hub{
		conns:       make(map[string]domain.Connection),
		rooms:       make(map[string]*room),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Attach makes conn addressable. It does not join any room.
func (h *Hub) Attach(conn domain.Connection) {
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	count := len(h.conns)
	h.mu.Unlock()

	slog.Info("client connected", "clientId", conn.ID(), "clients", count)
}

// Detach forgets conn. Callers leave its rooms first.
func (h *Hub) Detach(conn domain.Connection) {
	h.mu.Lock()
	delete(h.conns, conn.ID())
	count := len(h.conns)
	h.mu.Unlock()

	slog.Info("client disconnected", "clientId", conn.ID(), "clients", count)
}

// Join adds connID to roomID. Joining a room twice is a no-op.
func (h *Hub) Join(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms, ok := h.memberships[connID]
	if !ok {
		rooms = make(map[string]struct{})
		h.memberships[connID] = rooms
	}
	if _, joined := rooms[roomID]; joined {
		return
	}
	rooms[roomID] = struct{}{}

	r, exists := h.rooms[roomID]
	if !exists {
		r = &room{}
		h.rooms[roomID] = r
		slog.Debug("room created", "room", roomID)
	}
	r.members = append(r.members, connID)

	slog.Info("client joined", "room", roomID, "clientId", connID, "members", len(r.members))
}

func (h *Hub) Leave(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms, ok := h.memberships[connID]
	if !ok {
		return
	}
	if _, joined := rooms[roomID]; !joined {
		return
	}
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(h.memberships, connID)
	}

	r := h.rooms[roomID]
	r.members = lo.Without(r.members, connID)
	count := len(r.members)

	slog.Info("client left", "room", roomID, "clientId", connID, "members", count)

	if count == 0 {
		delete(h.rooms, roomID)
		slog.Info("room removed", "room", roomID)
	}
}

// MembersOf returns the members of roomID in join order. A room nobody is in
// yields an empty result.
func (h *Hub) MembersOf(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, exists := h.rooms[roomID]
	if !exists {
		return nil
	}
	members := make([]string, len(r.members))
	copy(members, r.members)
	return members
}

func (h *Hub) RoomsOf(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := lo.Keys(h.memberships[connID])
	sort.Strings(rooms)
	return rooms
}

func (h *Hub) IsMember(connID, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.memberships[connID][roomID]
	return ok
}

// SharesRoom reports whether a and b are members of at least one common room.
func (h *Hub) SharesRoom(a, b string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for roomID := range h.memberships[a] {
		if _, ok := h.memberships[b][roomID]; ok {
			return true
		}
	}
	return false
}

// SendTo delivers data to a single attached connection. It reports false when
// the target is gone.
func (h *Hub) SendTo(connID string, data []byte) bool {
	h.mu.RLock()
	conn, exists := h.conns[connID]
	h.mu.RUnlock()

	if !exists {
		return false
	}
	return h.deliver(conn, data)
}

// SendToRoom delivers data to every member of roomID except exceptID and
// returns how many connections accepted it. An empty exceptID targets everyone.
func (h *Hub) SendToRoom(roomID, exceptID string, data []byte) int {
	h.mu.RLock()
	r, exists := h.rooms[roomID]
	if !exists {
		h.mu.RUnlock()
		return 0
	}
	targets := make([]domain.Connection, 0, len(r.members))
	for _, id := range r.members {
		if id == exceptID {
			continue
		}
		if conn, ok := h.conns[id]; ok {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if h.deliver(conn, data) {
			delivered++
		}
	}
	return delivered
}

// BroadcastRoom sends data to every current member of roomID.
func (h *Hub) BroadcastRoom(roomID string, data []byte) int {
	return h.SendToRoom(roomID, "", data)
}

// deliver closes a connection that cannot keep up; its read loop then
// reconciles the disconnect.
func (h *Hub) deliver(conn domain.Connection, data []byte) bool {
	if err := conn.Send(data); err != nil {
		slog.Warn("send failed, closing connection", "clientId", conn.ID(), "error", err)
		go conn.Close()
		return false
	}
	return true
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms), len(h.conns)
}
