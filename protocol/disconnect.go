package protocol

import (
	"encoding/json"
	"log/slog"

	"codemate-server/domain"
)

// departure is everything the disconnect notifications need, captured before
// the registry or the index are touched.
type departure struct {
	connID   string
	username string
	rooms    []string
}

func (h *Handler) snapshot(connID string) departure {
	name, _ := h.names.Lookup(connID)
	return departure{
		connID:   connID,
		username: name,
		rooms:    h.rooms.RoomsOf(connID),
	}
}

// depart notifies the remaining members of each room, then leaves the rooms.
// The name is dropped from the registry only when forget is set.
func (h *Handler) depart(d departure, forget bool) {
	frame, err := domain.Encode(domain.EventDisconnected, domain.Disconnected{
		SocketID: d.connID,
		Username: d.username,
	})
	if err != nil {
		slog.Error("encode disconnect", "clientId", d.connID, "error", err)
	}

	for _, roomID := range d.rooms {
		if frame != nil {
			h.rooms.SendToRoom(roomID, d.connID, frame)
		}
		h.rooms.Leave(d.connID, roomID)
	}

	if forget {
		h.names.Unregister(d.connID)
	}
}

// Disconnect reconciles a lost transport session.
func (h *Handler) Disconnect(conn domain.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	d := h.snapshot(conn.ID())
	h.depart(d, true)
	h.rooms.Detach(conn)

	slog.Debug("connection reconciled", "clientId", conn.ID(), "rooms", len(d.rooms))
}

// leave runs the same reconciliation for a client that quits its room but
// keeps the socket open.
func (h *Handler) leave(conn domain.Connection, _ json.RawMessage) error {
	h.depart(h.snapshot(conn.ID()), true)
	return nil
}
