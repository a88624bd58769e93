package ws

import (
	"LiveChat/entity"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCore struct {
	agents map[string]*entity.Agent
	convs  map[string]*entity.Conversation
}

func (f *fakeCore) AuthenticateAgent(_ context.Context, token string) (*entity.Agent, error) {
	if agent, ok := f.agents[token]; ok {
		return agent, nil
	}
	return nil, entity.ErrUnauthorized
}

func (f *fakeCore) AuthenticateAccount(string) (entity.Party, error) {
	return entity.Party{}, entity.ErrUnauthorized
}

func (f *fakeCore) PartyConversation(_ context.Context, id string, party entity.Party) (*entity.Conversation, error) {
	conv, ok := f.convs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	if !conv.Party.Same(party) {
		return nil, entity.ErrForbidden
	}
	return conv, nil
}

func (f *fakeCore) AgentConversation(_ context.Context, id string, agent *entity.Agent) (*entity.Conversation, error) {
	conv, ok := f.convs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	if conv.Status != entity.StatusWaiting && !conv.AssignedTo(agent.ID) && !agent.IsAdmin() {
		return nil, entity.ErrForbidden
	}
	return conv, nil
}

func startServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(log)
	party := entity.NewVisitorParty(entity.VisitorParty{SessionID: "v1"})
	core := &fakeCore{
		agents: map[string]*entity.Agent{
			"agent-token": {ID: "a1", Username: "alice", Role: entity.RoleAgent, IsActive: true},
		},
		convs: map[string]*entity.Conversation{
			"c1": {ID: "c1", Party: party, PartyKey: party.Key(), Status: entity.StatusWaiting},
		},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, core, 16, log, w, r)
	}))
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(entity.Event{Type: eventType, Data: data}))
}

func receive(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func TestServeWsRejectsUnauthenticated(t *testing.T) {
	_, server := startServer(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?token=bad"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVisitorJoinsOwnConversation(t *testing.T) {
	hub, server := startServer(t)
	conn := dial(t, server, "session=v1")

	send(t, conn, entity.ControlJoinConversation, entity.JoinConversationControl{ConversationID: "c1"})
	event := receive(t, conn)
	assert.Equal(t, entity.EventJoined, event["type"])
	assert.Equal(t, "conversation:c1", event["data"].(map[string]interface{})["room"])
	assert.Equal(t, 1, hub.Members(entity.ConversationRoom("c1")))

	hub.Broadcast(entity.ConversationRoom("c1"), entity.EventAgentJoined, entity.AgentJoinedEvent{ConversationID: "c1", AgentName: "Alice"})
	event = receive(t, conn)
	assert.Equal(t, entity.EventAgentJoined, event["type"])

	send(t, conn, entity.ControlJoinAgentPool, nil)
	event = receive(t, conn)
	assert.Equal(t, entity.EventError, event["type"])
	assert.Equal(t, "forbidden", event["data"].(map[string]interface{})["code"])
}

func TestVisitorCannotJoinForeignConversation(t *testing.T) {
	hub, server := startServer(t)
	conn := dial(t, server, "session=intruder")

	send(t, conn, entity.ControlJoinConversation, entity.JoinConversationControl{ConversationID: "c1"})
	event := receive(t, conn)
	assert.Equal(t, entity.EventError, event["type"])
	assert.Equal(t, "forbidden", event["data"].(map[string]interface{})["code"])
	assert.Equal(t, 0, hub.Members(entity.ConversationRoom("c1")))

	send(t, conn, entity.ControlJoinConversation, entity.JoinConversationControl{ConversationID: "nope"})
	event = receive(t, conn)
	assert.Equal(t, "not_found", event["data"].(map[string]interface{})["code"])
}

func TestAgentJoinsPoolAndPresence(t *testing.T) {
	hub, server := startServer(t)
	conn := dial(t, server, "token=agent-token")

	send(t, conn, entity.ControlJoinAgentPool, nil)
	event := receive(t, conn)
	assert.Equal(t, entity.EventJoined, event["type"])
	assert.True(t, hub.IsOnline("a1"))

	send(t, conn, entity.ControlJoinConversation, entity.JoinConversationControl{ConversationID: "c1"})
	assert.Equal(t, entity.EventJoined, receive(t, conn)["type"])

	send(t, conn, entity.ControlLeaveConversation, entity.JoinConversationControl{ConversationID: "c1"})
	assert.Equal(t, entity.EventLeft, receive(t, conn)["type"])
	assert.Equal(t, 0, hub.Members(entity.ConversationRoom("c1")))

	send(t, conn, "bogus", nil)
	assert.Equal(t, entity.EventError, receive(t, conn)["type"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !hub.IsOnline("a1") }, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return hub.Members(entity.AgentPoolRoom) == 0 }, 5*time.Second, 20*time.Millisecond)
}
