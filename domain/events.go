package domain

import "encoding/json"

// Event names are the wire contract shared with deployed clients.
const (
	EventJoin         = "join"
	EventJoined       = "joined"
	EventLeave        = "leave"
	EventDisconnected = "disconnected"
	// misspelling is part of the contract
	EventCodeChange     = "conde-change"
	EventSyncCode       = "sync-code"
	EventChatMessage    = "chat_message"
	EventNewMessage     = "new_message_notification"
	EventRunCode        = "runCode"
	EventCodeOutput     = "codeOutput"
	EventSendingSignal  = "sending-signal"
	EventReturnedSignal = "receiving-returned-signal"
	EventPing           = "ping"
	EventPong           = "pong"
)

const ExecFailureMessage = "Failed to execute code"

type JoinPayload struct {
	RoomID   string `json:"roomId" validate:"required,max=128"`
	Username string `json:"username" validate:"required,max=64"`
}

type SyncCodePayload struct {
	SocketID string `json:"socketId" validate:"required"`
	Code     string `json:"code"`
}

type CodeChangePayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	Code   string `json:"code"`
}

type ChatPayload struct {
	RoomID  string `json:"roomId" validate:"required,max=128"`
	Message string `json:"message" validate:"required"`
}

type RunCodePayload struct {
	RoomID   string `json:"roomId" validate:"required,max=128"`
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

type SignalPayload struct {
	SocketID string          `json:"socketId" validate:"required"`
	Signal   json.RawMessage `json:"signal"`
}

type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// RosterEntry is a projection over the registry and the membership index; it is never stored.
type RosterEntry struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

type Joined struct {
	Clients  []RosterEntry `json:"clients"`
	Username string        `json:"username"`
	SocketID string        `json:"socketId"`
}

type Disconnected struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

type CodeChange struct {
	Code string `json:"code"`
}

type ChatMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type NewMessage struct {
	RoomID string `json:"roomId"`
}

type ExecFailure struct {
	Error string `json:"error"`
}

type Signal struct {
	Signal   json.RawMessage `json:"signal"`
	SocketID string          `json:"socketId"`
}
