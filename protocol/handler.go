package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"codemate-server/domain"
)

// Names is the connection registry as seen by the router.
type Names interface {
	Register(connID, name string)
	Lookup(connID string) (string, bool)
	Unregister(connID string)
}

// Rooms is the membership index as seen by the router.
type Rooms interface {
	Detach(conn domain.Connection)
	Join(connID, roomID string)
	Leave(connID, roomID string)
	MembersOf(roomID string) []string
	RoomsOf(connID string) []string
	IsMember(connID, roomID string) bool
	SharesRoom(a, b string) bool
	SendTo(connID string, data []byte) bool
	SendToRoom(roomID, exceptID string, data []byte) int
}

// Runner accepts code for asynchronous execution; the result reaches the room
// rather than the caller.
type Runner interface {
	Submit(roomID, code, language string)
}

type route func(h *Handler, conn domain.Connection, data json.RawMessage) error

var routes = map[string]route{
	domain.EventJoin:           (*Handler).join,
	domain.EventSyncCode:       (*Handler).syncCode,
	domain.EventCodeChange:     (*Handler).codeChange,
	domain.EventChatMessage:    (*Handler).chatMessage,
	domain.EventRunCode:        (*Handler).runCode,
	domain.EventSendingSignal:  relaySignal(domain.EventSendingSignal),
	domain.EventReturnedSignal: relaySignal(domain.EventReturnedSignal),
	domain.EventLeave:          (*Handler).leave,
	domain.EventPing:           (*Handler).ping,
}

// Handler routes inbound events. Handlers run one at a time so every event
// sees registry and membership state that no other event is halfway through
// changing.
type Handler struct {
	names    Names
	rooms    Rooms
	runner   Runner
	validate *validator.Validate
	mu       sync.Mutex
}

func NewHandler(names Names, rooms Rooms, runner Runner) *Handler {
	return &Handler{
		names:    names,
		rooms:    rooms,
		runner:   runner,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message", "clientId", conn.ID(), "error", err)
		return
	}

	r, ok := routes[msg.Type]
	if !ok {
		slog.Warn("dropped message", "clientId", conn.ID(), "type", msg.Type, "error", domain.ErrUnknownEvent)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := r(h, conn, msg.Data); err != nil {
		slog.Warn("dropped message", "clientId", conn.ID(), "type", msg.Type, "error", err)
	}
}

func (h *Handler) join(conn domain.Connection, data json.RawMessage) error {
	var p domain.JoinPayload
	if err := h.decode(data, &p); err != nil {
		return err
	}

	// one room per connection: moving rooms is a departure from the old one
	if prev := lo.Without(h.rooms.RoomsOf(conn.ID()), p.RoomID); len(prev) > 0 {
		d := h.snapshot(conn.ID())
		d.rooms = prev
		h.depart(d, false)
	}

	h.names.Register(conn.ID(), p.Username)
	h.rooms.Join(conn.ID(), p.RoomID)

	frame, err := domain.Encode(domain.EventJoined, domain.Joined{
		Clients:  h.roster(p.RoomID),
		Username: p.Username,
		SocketID: conn.ID(),
	})
	if err != nil {
		return err
	}
	h.rooms.SendToRoom(p.RoomID, "", frame)
	return nil
}

// roster is recomputed from the registry and the index on every call.
func (h *Handler) roster(roomID string) []domain.RosterEntry {
	return lo.FilterMap(h.rooms.MembersOf(roomID), func(id string, _ int) (domain.RosterEntry, bool) {
		name, ok := h.names.Lookup(id)
		return domain.RosterEntry{SocketID: id, Username: name}, ok
	})
}

func (h *Handler) syncCode(conn domain.Connection, data json.RawMessage) error {
	var p domain.SyncCodePayload
	if err := h.decode(data, &p); err != nil {
		return err
	}
	if !h.rooms.SharesRoom(conn.ID(), p.SocketID) {
		slog.Debug("sync target not in a shared room", "clientId", conn.ID(), "target", p.SocketID)
		return nil
	}

	frame, err := domain.Encode(domain.EventCodeChange, domain.CodeChange{Code: p.Code})
	if err != nil {
		return err
	}
	if !h.rooms.SendTo(p.SocketID, frame) {
		slog.Debug("sync target gone", "clientId", conn.ID(), "target", p.SocketID)
	}
	return nil
}

func (h *Handler) codeChange(conn domain.Connection, data json.RawMessage) error {
	var p domain.CodeChangePayload
	if err := h.decode(data, &p); err != nil {
		return err
	}
	if err := h.requireMember(conn, p.RoomID); err != nil {
		return err
	}

	frame, err := domain.Encode(domain.EventCodeChange, domain.CodeChange{Code: p.Code})
	if err != nil {
		return err
	}
	h.rooms.SendToRoom(p.RoomID, conn.ID(), frame)
	return nil
}

func (h *Handler) chatMessage(conn domain.Connection, data json.RawMessage) error {
	var p domain.ChatPayload
	if err := h.decode(data, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Message) == "" {
		return errors.New("empty chat message")
	}
	if err := h.requireMember(conn, p.RoomID); err != nil {
		return err
	}

	name, _ := h.names.Lookup(conn.ID())
	chat, err := domain.Encode(domain.EventChatMessage, domain.ChatMessage{Username: name, Message: p.Message})
	if err != nil {
		return err
	}
	notice, err := domain.Encode(domain.EventNewMessage, domain.NewMessage{RoomID: p.RoomID})
	if err != nil {
		return err
	}

	h.rooms.SendToRoom(p.RoomID, conn.ID(), chat)
	h.rooms.SendToRoom(p.RoomID, conn.ID(), notice)
	return nil
}

func (h *Handler) runCode(conn domain.Connection, data json.RawMessage) error {
	var p domain.RunCodePayload
	if err := h.decode(data, &p); err != nil {
		return err
	}
	if err := h.requireMember(conn, p.RoomID); err != nil {
		return err
	}

	slog.Info("execution requested", "clientId", conn.ID(), "room", p.RoomID, "language", p.Language)
	h.runner.Submit(p.RoomID, p.Code, p.Language)
	return nil
}

// relaySignal forwards an opaque WebRTC signaling payload to one peer,
// stamped with the sender's id.
func relaySignal(event string) route {
	return func(h *Handler, conn domain.Connection, data json.RawMessage) error {
		var p domain.SignalPayload
		if err := h.decode(data, &p); err != nil {
			return err
		}
		if !h.rooms.SharesRoom(conn.ID(), p.SocketID) {
			return fmt.Errorf("signal to %s: %w", p.SocketID, domain.ErrNotMember)
		}

		frame, err := domain.Encode(event, domain.Signal{Signal: p.Signal, SocketID: conn.ID()})
		if err != nil {
			return err
		}
		h.rooms.SendTo(p.SocketID, frame)
		return nil
	}
}

func (h *Handler) ping(conn domain.Connection, data json.RawMessage) error {
	var p domain.PingPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
	}

	pong, err := domain.Encode(domain.EventPong, p)
	if err != nil {
		return err
	}
	return conn.Send(pong)
}

func (h *Handler) requireMember(conn domain.Connection, roomID string) error {
	if !h.rooms.IsMember(conn.ID(), roomID) {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotMember)
	}
	return nil
}

func (h *Handler) decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	return nil
}
