package domain

import (
	"context"
	"encoding/json"
)

// Message is the envelope every frame on the wire is wrapped in.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
	Disconnect(conn Connection)
}

// RoomBroadcaster delivers an already encoded frame to every current member of a room.
type RoomBroadcaster interface {
	BroadcastRoom(roomID string, data []byte) int
}

type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (json.RawMessage, error)
}

type ExecRequest struct {
	Script       string `json:"script"`
	Language     string `json:"language"`
	VersionIndex string `json:"versionIndex"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// Encode wraps payload in an envelope of the given type.
func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: eventType, Data: raw})
}
