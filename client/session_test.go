package client

import (
	"LiveChat/entity"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketServer is a scripted chat endpoint: it records joins, serves a
// mutable history and can drop every open socket on demand.
type socketServer struct {
	server *httptest.Server
	reject bool

	dials        atomic.Int32
	historyCalls atomic.Int32
	joins        chan string

	mu      sync.Mutex
	conns   []*websocket.Conn
	history []entity.Message
}

func newSocketServer(t *testing.T, reject bool) *socketServer {
	t.Helper()
	s := &socketServer{reject: reject, joins: make(chan string, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		s.dials.Add(1)
		if s.reject {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		for {
			var ev struct {
				Type string                         `json:"type"`
				Data entity.JoinConversationControl `json:"data"`
			}
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			if ev.Type == entity.ControlJoinConversation {
				s.joins <- ev.Data.ConversationID
			}
		}
	})
	mux.HandleFunc("GET /api/v1/chat/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		s.historyCalls.Add(1)
		s.mu.Lock()
		data, _ := json.Marshal(s.history)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
	})

	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *socketServer) setHistory(messages ...entity.Message) {
	s.mu.Lock()
	s.history = messages
	s.mu.Unlock()
}

func (s *socketServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func waitJoin(t *testing.T, joins chan string) string {
	t.Helper()
	select {
	case id := <-joins:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("no join received")
		return ""
	}
}

func fastOptions() Options {
	return Options{MaxFailures: 3, MinBackoff: 10 * time.Millisecond, MaxBackoff: 40 * time.Millisecond}
}

func TestSession_ResubscribesAndResyncsAfterReconnect(t *testing.T) {
	fake := newSocketServer(t, false)
	base := time.Now().UTC().Truncate(time.Millisecond)
	fake.setHistory(message("m1", base))

	a, err := NewAPI(fake.server.URL, Identity{VisitorSession: "v-1"})
	require.NoError(t, err)
	session := NewSession(a, fastOptions())
	require.NoError(t, session.JoinConversation(context.Background(), "c1"))

	var mu sync.Mutex
	var states []State
	session.OnState(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	assert.Equal(t, "c1", waitJoin(t, fake.joins))
	require.Eventually(t, func() bool { return len(session.Messages("c1")) == 1 }, 5*time.Second, 10*time.Millisecond)

	// m2 is stored while the socket is down and must come back via history.
	fake.setHistory(message("m1", base), message("m2", base.Add(time.Second)))
	fake.dropAll()

	assert.Equal(t, "c1", waitJoin(t, fake.joins))
	require.Eventually(t, func() bool { return len(session.Messages("c1")) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, fake.historyCalls.Load(), int32(2))
	assert.GreaterOrEqual(t, fake.dials.Load(), int32(2))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, StateClosed, session.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, StateConnected)
	assert.Contains(t, states, StateReconnecting)
}

func TestSession_UnauthorizedStopsWithoutRetry(t *testing.T) {
	fake := newSocketServer(t, true)
	a, err := NewAPI(fake.server.URL, Identity{AgentToken: "expired"})
	require.NoError(t, err)
	session := NewSession(a, fastOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = session.Run(ctx)

	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, StateLoggedOut, session.State())
	assert.EqualValues(t, 1, fake.dials.Load())
}

func TestSession_DegradedAfterRepeatedFailures(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	a, err := NewAPI(url, Identity{VisitorSession: "v-1"})
	require.NoError(t, err)
	session := NewSession(a, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	require.Eventually(t, func() bool { return session.State() == StateDegraded }, 5*time.Second, 5*time.Millisecond)
	// Still degraded while it keeps retrying.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateDegraded, session.State())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSession_OnKeepsOneHandlerPerEvent(t *testing.T) {
	a, err := NewAPI("http://localhost", Identity{VisitorSession: "v-1"})
	require.NoError(t, err)
	session := NewSession(a, Options{})

	var first, second int
	unsubFirst := session.On("custom", func(json.RawMessage) { first++ })
	unsubSecond := session.On("custom", func(json.RawMessage) { second++ })

	session.dispatch("custom", nil)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)

	// A stale unsubscribe does not remove the newer handler.
	unsubFirst()
	session.dispatch("custom", nil)
	assert.Equal(t, 2, second)

	unsubSecond()
	unsubSecond()
	session.dispatch("custom", nil)
	assert.Equal(t, 2, second)
}

func TestSession_DispatchMergesArrivedMessages(t *testing.T) {
	a, err := NewAPI("http://localhost", Identity{VisitorSession: "v-1"})
	require.NoError(t, err)
	session := NewSession(a, Options{})
	require.NoError(t, session.JoinConversation(context.Background(), "c1"))

	arrived := entity.NewMessageArrived(&entity.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderType:     entity.SenderAgent,
		Body:           "hi",
		CreatedAt:      time.Now().UTC(),
	})
	raw, err := json.Marshal(arrived)
	require.NoError(t, err)

	var got entity.MessageArrivedEvent
	session.On(entity.EventMessageArrived, func(data json.RawMessage) {
		_ = json.Unmarshal(data, &got)
	})

	session.dispatch(entity.EventMessageArrived, raw)
	session.dispatch(entity.EventMessageArrived, raw)

	assert.Equal(t, "m1", got.ID)
	assert.Len(t, session.Messages("c1"), 1)
	assert.Nil(t, session.Messages("other"))
}

func TestSession_LiveConversation(t *testing.T) {
	server := newStack(t)
	ctx := context.Background()

	visitorAPI, err := NewAPI(server.URL, Identity{VisitorSession: "v-live"})
	require.NoError(t, err)
	conv, err := visitorAPI.Start(ctx, entity.StartRequest{Name: "Ann"})
	require.NoError(t, err)

	visitor := NewSession(visitorAPI, fastOptions())
	joined := make(chan struct{}, 1)
	visitor.On(entity.EventJoined, func(json.RawMessage) { joined <- struct{}{} })
	arrived := make(chan entity.MessageArrivedEvent, 4)
	visitor.On(entity.EventMessageArrived, func(data json.RawMessage) {
		var ev entity.MessageArrivedEvent
		if json.Unmarshal(data, &ev) == nil {
			arrived <- ev
		}
	})
	require.NoError(t, visitor.JoinConversation(ctx, conv.ID))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = visitor.Run(runCtx) }()

	select {
	case <-joined:
	case <-time.After(5 * time.Second):
		t.Fatal("visitor never joined")
	}

	bob := newAgent(t, server.URL, "bob")
	_, err = bob.Claim(ctx, conv.ID)
	require.NoError(t, err)
	reply, err := bob.Post(ctx, conv.ID, "hello from bob", "")
	require.NoError(t, err)

	select {
	case ev := <-arrived:
		assert.Equal(t, reply.ID, ev.ID)
		assert.Equal(t, entity.SenderAgent, ev.SenderType)
	case <-time.After(5 * time.Second):
		t.Fatal("reply not delivered")
	}

	sent, err := visitor.Send(ctx, conv.ID, "thanks")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		messages := visitor.Messages(conv.ID)
		return len(messages) == 2 && messages[1].ID == sent.ID
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSession_LateJoinLoadsHistory(t *testing.T) {
	server := newStack(t)
	ctx := context.Background()

	visitorAPI, err := NewAPI(server.URL, Identity{VisitorSession: "v-late"})
	require.NoError(t, err)
	conv, err := visitorAPI.Start(ctx, entity.StartRequest{})
	require.NoError(t, err)

	bob := newAgent(t, server.URL, "bob")
	_, err = bob.Claim(ctx, conv.ID)
	require.NoError(t, err)
	reply, err := bob.Post(ctx, conv.ID, "are you there?", "")
	require.NoError(t, err)

	visitor := NewSession(visitorAPI, fastOptions())
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = visitor.Run(runCtx) }()
	require.Eventually(t, func() bool { return visitor.State() == StateConnected }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, visitor.JoinConversation(ctx, conv.ID))

	messages := visitor.Messages(conv.ID)
	require.Len(t, messages, 1)
	assert.Equal(t, reply.ID, messages[0].ID)
}
