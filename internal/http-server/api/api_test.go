package api

import (
	"LiveChat/entity"
	"LiveChat/impl/core"
	"LiveChat/internal/config"
	repository "LiveChat/internal/database"
	"LiveChat/internal/ws"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	server *httptest.Server
	core   *core.Core
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := ws.NewHub(log)
	c := core.New(log)
	c.SetRepository(store)
	c.SetBroadcaster(hub)
	c.SetAuthKey("test-secret", time.Hour)
	require.NoError(t, c.EnsureAdmin(context.Background(), "admin", "admin-password", "Admin"))

	conf := &config.Config{}
	conf.Cors.AllowedOrigins = []string{"*"}
	conf.Chat.SendBuffer = 16

	server := httptest.NewServer(NewRouter(conf, log, c, hub))
	t.Cleanup(server.Close)
	return &testServer{server: server, core: c}
}

func (s *testServer) do(t *testing.T, method, path string, headers map[string]string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) login(t *testing.T, username, password string) map[string]string {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/v1/agent/login", nil, map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	var session entity.AgentSession
	require.NoError(t, json.Unmarshal(env.Data, &session))
	return map[string]string{"Authorization": "Bearer " + session.Token}
}

func (s *testServer) createAgent(t *testing.T, admin map[string]string, username string) map[string]string {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/v1/admin/agents", admin, map[string]string{
		"username":     username,
		"password":     "password-" + username,
		"display_name": "Agent " + username,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	return s.login(t, username, "password-"+username)
}

func visitor(session string) map[string]string {
	return map[string]string{"X-Visitor-Session": session}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

func TestScenarioOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin-password")
	agentA := s.createAgent(t, admin, "alice")
	agentB := s.createAgent(t, admin, "bob")

	status, env := s.do(t, http.MethodPost, "/api/v1/chat/start", visitor("v1"), map[string]string{"name": "Ann", "subject": "billing"})
	require.Equal(t, http.StatusOK, status, env.Message)
	var conv entity.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &conv))
	assert.Equal(t, entity.StatusWaiting, conv.Status)
	assert.Nil(t, conv.Agent)
	assert.Equal(t, "Ann", conv.Party.Visitor.Name)

	status, env = s.do(t, http.MethodPost, "/api/v1/chat/start", visitor("v1"), nil)
	require.Equal(t, http.StatusOK, status)
	var again entity.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &again))
	assert.Equal(t, conv.ID, again.ID)

	status, env = s.do(t, http.MethodGet, "/api/v1/agent/conversations?status=waiting", agentA, nil)
	require.Equal(t, http.StatusOK, status)
	var queue []entity.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &queue))
	require.Len(t, queue, 1)

	status, _ = s.do(t, http.MethodPost, "/api/v1/agent/conversations/"+conv.ID+"/claim", agentA, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodPost, "/api/v1/agent/conversations/"+conv.ID+"/claim", agentB, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", env.Code)

	status, _ = s.do(t, http.MethodPost, "/api/v1/chat/"+conv.ID+"/messages", visitor("v1"), map[string]string{"body": "hello", "client_id": "tmp-1"})
	require.Equal(t, http.StatusCreated, status)

	status, env = s.do(t, http.MethodGet, "/api/v1/agent/conversations/"+conv.ID+"/messages", agentA, nil)
	require.Equal(t, http.StatusOK, status)
	var history []entity.Message
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Body)
	assert.Equal(t, "tmp-1", history[0].ClientID)

	status, _ = s.do(t, http.MethodPost, "/api/v1/agent/conversations/"+conv.ID+"/close", agentA, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodPost, "/api/v1/chat/"+conv.ID+"/messages", visitor("v1"), map[string]string{"body": "still there?"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "conversation_closed", env.Code)

	status, env = s.do(t, http.MethodPost, "/api/v1/chat/start", visitor("v1"), nil)
	require.Equal(t, http.StatusOK, status)
	var next entity.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &next))
	assert.NotEqual(t, conv.ID, next.ID)
}

func TestAuthErrors(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/v1/agent/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", env.Code)

	status, _ = s.do(t, http.MethodGet, "/api/v1/agent/me", map[string]string{"Authorization": "Bearer nonsense"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/chat/start", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(t, http.MethodPost, "/api/v1/agent/login", nil, map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", env.Code)

	admin := s.login(t, "admin", "admin-password")
	agent := s.createAgent(t, admin, "alice")
	status, env = s.do(t, http.MethodGet, "/api/v1/admin/agents", agent, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", env.Code)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin-password")

	status, env := s.do(t, http.MethodPost, "/api/v1/admin/agents", admin, map[string]string{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", env.Code)

	_, env = s.do(t, http.MethodPost, "/api/v1/chat/start", visitor("v9"), nil)
	var conv entity.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &conv))

	status, env = s.do(t, http.MethodPost, "/api/v1/chat/"+conv.ID+"/messages", visitor("v9"), map[string]string{"body": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", env.Code)

	status, _ = s.do(t, http.MethodGet, "/api/v1/chat/"+conv.ID+"/messages", visitor("other"), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = s.do(t, http.MethodGet, "/api/v1/admin/conversations/missing", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin-password")
	s.createAgent(t, admin, "alice")

	status, env := s.do(t, http.MethodGet, "/api/v1/admin/agents", admin, nil)
	require.Equal(t, http.StatusOK, status)
	var agents []entity.Agent
	require.NoError(t, json.Unmarshal(env.Data, &agents))
	require.Len(t, agents, 2)

	var alice entity.Agent
	for _, a := range agents {
		if a.Username == "alice" {
			alice = a
		}
	}
	require.NotEmpty(t, alice.ID)

	status, env = s.do(t, http.MethodPost, "/api/v1/admin/agents", admin, map[string]string{
		"username": "alice", "password": "password-x", "display_name": "Dup",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_exists", env.Code)

	status, _ = s.do(t, http.MethodPut, "/api/v1/admin/agents/"+alice.ID, admin, map[string]string{"display_name": "Alice S"})
	require.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/admin/agents/"+alice.ID+"/disable", admin, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodPost, "/api/v1/agent/login", nil, map[string]string{"username": "alice", "password": "password-alice"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", env.Code)

	for _, sid := range []string{"v1", "v2", "v3"} {
		status, _ = s.do(t, http.MethodPost, "/api/v1/chat/start", visitor(sid), nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, env = s.do(t, http.MethodGet, "/api/v1/admin/conversations?status=waiting&page=1&limit=2", admin, nil)
	require.Equal(t, http.StatusOK, status)
	var page entity.ConversationPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	status, env = s.do(t, http.MethodGet, "/api/v1/admin/conversations/"+page.Items[0].ID, admin, nil)
	require.Equal(t, http.StatusOK, status)
	var detail entity.ConversationDetail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, page.Items[0].ID, detail.Conversation.ID)
	assert.Empty(t, detail.Messages)

	status, _ = s.do(t, http.MethodGet, "/api/v1/admin/conversations?page=abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/admin/agents/"+alice.ID, admin, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/api/v1/admin/agents/"+alice.ID, admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, http.MethodGet, "/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
}
