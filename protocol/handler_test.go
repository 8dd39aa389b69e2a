package protocol

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemate-server/domain"
	"codemate-server/hub"
	"codemate-server/registry"
)

type mockConn struct {
	id   string
	sent [][]byte
	mu   sync.Mutex
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) getSent() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]domain.Message, 0, len(m.sent))
	for _, data := range m.sent {
		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err == nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (m *mockConn) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type submission struct {
	roomID, code, language string
}

type mockRunner struct {
	submissions []submission
	mu          sync.Mutex
}

func (m *mockRunner) Submit(roomID, code, language string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, submission{roomID, code, language})
}

func (m *mockRunner) getSubmissions() []submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submissions
}

type fixture struct {
	handler *Handler
	hub     *hub.Hub
	names   *registry.Registry
	runner  *mockRunner
}

func newFixture() *fixture {
	f := &fixture{
		hub:    hub.New(),
		names:  registry.New(),
		runner: &mockRunner{},
	}
	f.handler = NewHandler(f.names, f.hub, f.runner)
	return f
}

func (f *fixture) connect(id string) *mockConn {
	c := &mockConn{id: id}
	f.hub.Attach(c)
	return c
}

func (f *fixture) emit(t *testing.T, c *mockConn, event string, payload any) {
	t.Helper()
	data, err := domain.Encode(event, payload)
	require.NoError(t, err)
	f.handler.Handle(c, data)
}

func (f *fixture) join(t *testing.T, c *mockConn, room, name string) {
	t.Helper()
	f.emit(t, c, domain.EventJoin, domain.JoinPayload{RoomID: room, Username: name})
}

func decodeData[T any](t *testing.T, msg domain.Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

func TestHandler_JoinBroadcastsRoster(t *testing.T) {
	f := newFixture()
	a := f.connect("A")
	b := f.connect("B")

	f.join(t, a, "r1", "alice")

	sent := a.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventJoined, sent[0].Type)
	joined := decodeData[domain.Joined](t, sent[0])
	assert.Equal(t, []domain.RosterEntry{{SocketID: "A", Username: "alice"}}, joined.Clients)
	assert.Equal(t, "alice", joined.Username)
	assert.Equal(t, "A", joined.SocketID)

	f.join(t, b, "r1", "bob")

	want := []domain.RosterEntry{
		{SocketID: "A", Username: "alice"},
		{SocketID: "B", Username: "bob"},
	}
	for _, c := range []*mockConn{a, b} {
		sent := c.getSent()
		require.NotEmpty(t, sent, "client %s", c.id)
		last := sent[len(sent)-1]
		assert.Equal(t, domain.EventJoined, last.Type)
		joined := decodeData[domain.Joined](t, last)
		assert.Equal(t, want, joined.Clients)
		assert.Equal(t, "bob", joined.Username)
		assert.Equal(t, "B", joined.SocketID)
	}
	assert.Equal(t, []string{"A", "B"}, f.hub.MembersOf("r1"))
}

func TestHandler_RepeatedJoinDoesNotDuplicate(t *testing.T) {
	f := newFixture()
	ids := []string{"c1", "c2", "c3", "c4"}
	conns := make(map[string]*mockConn)
	for _, id := range ids {
		conns[id] = f.connect(id)
		f.join(t, conns[id], "r1", id)
	}
	conns["c2"].reset()

	f.join(t, conns["c2"], "r1", "c2-renamed")

	assert.Equal(t, ids, f.hub.MembersOf("r1"))
	sent := conns["c2"].getSent()
	require.Len(t, sent, 1)
	joined := decodeData[domain.Joined](t, sent[0])
	assert.Len(t, joined.Clients, len(ids))
	assert.Contains(t, joined.Clients, domain.RosterEntry{SocketID: "c2", Username: "c2-renamed"})
}

func TestHandler_SyncCodeUnicastsToTarget(t *testing.T) {
	f := newFixture()
	a := f.connect("A")
	b := f.connect("B")
	f.join(t, a, "r1", "alice")
	f.join(t, b, "r1", "bob")
	a.reset()
	b.reset()

	f.emit(t, b, domain.EventSyncCode, domain.SyncCodePayload{SocketID: "A", Code: "print(1)"})

	sent := a.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventCodeChange, sent[0].Type)
	assert.Equal(t, "print(1)", decodeData[domain.CodeChange](t, sent[0]).Code)
	assert.Empty(t, b.getSent())
}

func TestHandler_SyncCodeMisuseIsSilent(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{name: "vanished target", target: "gone"},
		{name: "target in another room", target: "C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			a := f.connect("A")
			c := f.connect("C")
			f.join(t, a, "r1", "alice")
			f.join(t, c, "r2", "carol")
			a.reset()
			c.reset()

			f.emit(t, a, domain.EventSyncCode, domain.SyncCodePayload{SocketID: tt.target, Code: "x"})

			assert.Empty(t, a.getSent())
			assert.Empty(t, c.getSent())
		})
	}
}

func TestHandler_CodeChangeSkipsSender(t *testing.T) {
	f := newFixture()
	a := f.connect("A")
	b := f.connect("B")
	c := f.connect("C")
	f.join(t, a, "r1", "alice")
	f.join(t, b, "r1", "bob")
	f.join(t, c, "r1", "carol")
	a.reset()
	b.reset()
	c.reset()

	f.emit(t, a, domain.EventCodeChange, domain.CodeChangePayload{RoomID: "r1", Code: "let x = 1"})

	assert.Empty(t, a.getSent())
	for _, r := range []*mockConn{b, c} {
		sent := r.getSent()
		require.Len(t, sent, 1, "client %s", r.id)
		assert.Equal(t, domain.EventCodeChange, sent[0].Type)
		assert.Equal(t, "let x = 1", decodeData[domain.CodeChange](t, sent[0]).Code)
	}
}

func TestHandler_RequiresMembership(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload any
	}{
		{
			name:    "code change",
			event:   domain.EventCodeChange,
			payload: domain.CodeChangePayload{RoomID: "r1", Code: "evil()"},
		},
		{
			name:    "chat message",
			event:   domain.EventChatMessage,
			payload: domain.ChatPayload{RoomID: "r1", Message: "spam"},
		},
		{
			name:    "run code",
			event:   domain.EventRunCode,
			payload: domain.RunCodePayload{RoomID: "r1", Code: "while(true){}"},
		},
		{
			name:    "signal",
			event:   domain.EventSendingSignal,
			payload: domain.SignalPayload{SocketID: "A", Signal: json.RawMessage(`{"sdp":"x"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			a := f.connect("A")
			intruder := f.connect("X")
			f.join(t, a, "r1", "alice")
			f.join(t, intruder, "r2", "mallory")
			a.reset()
			intruder.reset()

			f.emit(t, intruder, tt.event, tt.payload)

			assert.Empty(t, a.getSent())
			assert.Empty(t, intruder.getSent())
			assert.Empty(t, f.runner.getSubmissions())
		})
	}
}

func TestHandler_ChatMessage(t *testing.T) {
	f := newFixture()
	a := f.connect("A")
	b := f.connect("B")
	f.join(t, a, "r1", "alice")
	f.join(t, b, "r1", "bob")
	a.reset()
	b.reset()

	f.emit(t, a, domain.EventChatMessage, domain.ChatPayload{RoomID: "r1", Message: "hi"})

	assert.Empty(t, a.getSent())
	sent := b.getSent()
	require.Len(t, sent, 2)
	assert.Equal(t, domain.EventChatMessage, sent[0].Type)
	assert.Equal(t, domain.ChatMessage{Username: "alice", Message: "hi"}, decodeData[domain.ChatMessage](t, sent[0]))
	assert.Equal(t, domain.EventNewMessage, sent[1].Type)
	assert.Equal(t, "r1", decodeData[domain.NewMessage](t, sent[1]).RoomID)
}

func TestHandler_BlankChatDropped(t *testing.T) {
	f := newFixture()
	a := f.connect("A")
	b := f.connect("B")
	f.join(t, a, "r1", "alice")
	f.join(t, b, "r1", "bob")
	b.reset()

	f.emit(t, a, domain.EventChatMessage, domain.ChatPayload{RoomID: "r1", Message: "   "})

	assert.Empty(t, b.getSent())
}

func TestHandler_RunCodeSubmits(t *testing.T) {
	f := newFixture()
	a := f.connect("A")
	f.join(t, a, "r1", "alice")

	f.emit(t, a, domain.EventRunCode, domain.RunCodePayload{RoomID: "r1", Code: "console.log(1)", Language: "nodejs"})

	assert.Equal(t, []submission{{roomID: "r1", code: "console.log(1)", language: "nodejs"}}, f.runner.getSubmissions())
}

func TestHandler_SignalRelay(t *testing.T) {
	for _, event := range []string{domain.EventSendingSignal, domain.EventReturnedSignal} {
		t.Run(event, func(t *testing.T) {
			f := newFixture()
			a := f.connect("A")
			b := f.connect("B")
			f.join(t, a, "r1", "alice")
			f.join(t, b, "r1", "bob")
			a.reset()
			b.reset()

			f.emit(t, a, event, domain.SignalPayload{SocketID: "B", Signal: json.RawMessage(`{"type":"offer","sdp":"v=0"}`)})

			assert.Empty(t, a.getSent())
			sent := b.getSent()
			require.Len(t, sent, 1)
			assert.Equal(t, event, sent[0].Type)
			sig := decodeData[domain.Signal](t, sent[0])
			assert.Equal(t, "A", sig.SocketID)
			assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(sig.Signal))
		})
	}
}

func TestHandler_Disconnect(t *testing.T) {
	f := newFixture()
	a := f.connect("A")
	b := f.connect("B")
	f.join(t, a, "r1", "alice")
	f.join(t, b, "r1", "bob")
	a.reset()
	b.reset()

	f.handler.Disconnect(a)

	sent := b.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventDisconnected, sent[0].Type)
	assert.Equal(t, domain.Disconnected{SocketID: "A", Username: "alice"}, decodeData[domain.Disconnected](t, sent[0]))
	assert.Empty(t, a.getSent())

	assert.NotContains(t, f.hub.MembersOf("r1"), "A")
	_, ok := f.names.Lookup("A")
	assert.False(t, ok)
	_, clients := f.hub.Stats()
	assert.Equal(t, 1, clients)
}

func TestHandler_DisconnectLastMemberRemovesRoom(t *testing.T) {
	f := newFixture()
	a := f.connect("A")
	f.join(t, a, "r1", "alice")

	f.handler.Disconnect(a)

	rooms, clients := f.hub.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
	assert.Empty(t, f.hub.MembersOf("r1"))
}

func TestHandler_DisconnectWithoutJoin(t *testing.T) {
	f := newFixture()
	a := f.connect("A")

	f.handler.Disconnect(a)
	f.handler.Disconnect(a)

	_, clients := f.hub.Stats()
	assert.Equal(t, 0, clients)
}

func TestHandler_LeaveKeepsConnection(t *testing.T) {
	f := newFixture()
	a := f.connect("A")
	b := f.connect("B")
	f.join(t, a, "r1", "alice")
	f.join(t, b, "r1", "bob")
	b.reset()

	f.emit(t, a, domain.EventLeave, struct{}{})

	sent := b.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.Disconnected{SocketID: "A", Username: "alice"}, decodeData[domain.Disconnected](t, sent[0]))
	assert.Empty(t, f.hub.RoomsOf("A"))
	_, clients := f.hub.Stats()
	assert.Equal(t, 2, clients)
}

func TestHandler_JoinAnotherRoomLeavesPrevious(t *testing.T) {
	f := newFixture()
	a := f.connect("A")
	b := f.connect("B")
	f.join(t, a, "r1", "alice")
	f.join(t, b, "r1", "bob")
	a.reset()
	b.reset()

	f.join(t, a, "r2", "alice")

	assert.Equal(t, []string{"r2"}, f.hub.RoomsOf("A"))
	sent := b.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventDisconnected, sent[0].Type)

	aSent := a.getSent()
	require.Len(t, aSent, 1)
	joined := decodeData[domain.Joined](t, aSent[0])
	assert.Equal(t, []domain.RosterEntry{{SocketID: "A", Username: "alice"}}, joined.Clients)
}

func TestHandler_PingPong(t *testing.T) {
	f := newFixture()
	conn := f.connect("client1")

	f.emit(t, conn, domain.EventPing, domain.PingPayload{Timestamp: 12345})

	sent := conn.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventPong, sent[0].Type)
	assert.Equal(t, int64(12345), decodeData[domain.PingPayload](t, sent[0]).Timestamp)
}

func TestHandler_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "not json"},
		{name: "unknown event", data: `{"type":"teleport","data":{}}`},
		{name: "missing payload", data: `{"type":"join"}`},
		{name: "missing username", data: `{"type":"join","data":{"roomId":"r1"}}`},
		{name: "wrong payload shape", data: `{"type":"join","data":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			conn := f.connect("client1")

			f.handler.Handle(conn, []byte(tt.data))

			assert.Empty(t, conn.getSent())
			assert.Empty(t, f.hub.RoomsOf("client1"))
		})
	}
}
