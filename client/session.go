package client

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/sl"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDegraded     State = "degraded"
	StateLoggedOut    State = "logged_out"
	StateClosed       State = "closed"
)

// EventHistorySynced is raised locally when a resync added messages.
const EventHistorySynced = "history_synced"

// ErrUnauthorized ends Run when the server rejects the credentials.
var ErrUnauthorized = entity.ErrUnauthorized

type Handler func(data json.RawMessage)

type registration struct {
	id uint64
	fn Handler
}

type Options struct {
	// MaxFailures consecutive failed dials switch the state to degraded.
	MaxFailures int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	Log         *slog.Logger
}

func (o *Options) defaults() {
	if o.MaxFailures <= 0 {
		o.MaxFailures = 5
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = o.MinBackoff
	}
	if o.Log == nil {
		o.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Session keeps one socket alive for a visitor, account or agent. Desired
// subscriptions live here, not on the connection, so every reconnect
// restores them and resynchronises history.
type Session struct {
	api    *API
	opts   Options
	dialer *websocket.Dialer
	log    *slog.Logger

	mu       sync.Mutex
	state    State
	onState  func(State)
	rooms    map[string]struct{}
	pool     bool
	lists    map[string]*MessageList
	handlers map[string]registration
	nextID   uint64
	conn     *websocket.Conn

	wmu sync.Mutex
}

func NewSession(api *API, opts Options) *Session {
	opts.defaults()
	return &Session{
		api:      api,
		opts:     opts,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:      opts.Log.With(sl.Module("client.session")),
		state:    StateIdle,
		rooms:    make(map[string]struct{}),
		lists:    make(map[string]*MessageList),
		handlers: make(map[string]registration),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnState sets a callback for state transitions.
func (s *Session) OnState(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// On installs the handler for an event type, replacing any earlier one.
// The returned function removes it and is safe to call more than once.
func (s *Session) On(event string, fn Handler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers[event] = registration{id: id, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if current, ok := s.handlers[event]; ok && current.id == id {
				delete(s.handlers, event)
			}
		})
	}
}

func (s *Session) handler(event string) Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[event].fn
}

// Messages returns the local log of a joined conversation.
func (s *Session) Messages(conversationID string) []entity.Message {
	s.mu.Lock()
	list := s.lists[conversationID]
	s.mu.Unlock()
	if list == nil {
		return nil
	}
	return list.Messages()
}

func (s *Session) list(conversationID string) *MessageList {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[conversationID]
	if !ok {
		list = NewMessageList()
		s.lists[conversationID] = list
	}
	return list
}

// JoinConversation subscribes now if connected and after every reconnect.
// On a live connection the stored history is fetched right after the join.
func (s *Session) JoinConversation(ctx context.Context, conversationID string) error {
	s.list(conversationID)
	s.mu.Lock()
	s.rooms[conversationID] = struct{}{}
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := s.write(conn, entity.ControlJoinConversation, entity.JoinConversationControl{ConversationID: conversationID}); err != nil {
		return err
	}
	return s.resync(ctx, conversationID)
}

func (s *Session) LeaveConversation(conversationID string) error {
	s.mu.Lock()
	delete(s.rooms, conversationID)
	delete(s.lists, conversationID)
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return s.write(conn, entity.ControlLeaveConversation, entity.JoinConversationControl{ConversationID: conversationID})
}

// JoinAgentPool subscribes an agent session to queue wide events.
func (s *Session) JoinAgentPool() error {
	s.mu.Lock()
	s.pool = true
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return s.write(conn, entity.ControlJoinAgentPool, nil)
}

// Send posts a message optimistically: it shows up as pending at once and
// is replaced by the server copy, matched on the client id.
func (s *Session) Send(ctx context.Context, conversationID, body string) (*entity.Message, error) {
	sender := entity.SenderUser
	if s.api.IsAgent() {
		sender = entity.SenderAgent
	}
	clientID := uuid.NewString()
	list := s.list(conversationID)
	list.AddPending(clientID, body, sender)

	msg, err := s.api.Post(ctx, conversationID, body, clientID)
	if err != nil {
		list.DropPending(clientID)
		return nil, err
	}
	list.Merge(*msg)
	return msg, nil
}

func (s *Session) write(conn *websocket.Conn, event string, data interface{}) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(entity.Event{Type: event, Data: data})
}

func (s *Session) backoff(failures int) time.Duration {
	d := s.opts.MinBackoff
	for i := 1; i < failures && d < s.opts.MaxBackoff; i++ {
		d *= 2
	}
	if d > s.opts.MaxBackoff {
		d = s.opts.MaxBackoff
	}
	return d
}

// Run connects and keeps reconnecting until ctx is done or the server
// rejects the credentials.
func (s *Session) Run(ctx context.Context) error {
	failures := 0
	connected := false
	for {
		switch {
		case failures >= s.opts.MaxFailures:
		case connected:
			s.setState(StateReconnecting)
		default:
			s.setState(StateConnecting)
		}

		conn, resp, err := s.dialer.DialContext(ctx, s.api.SocketURL(), nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				s.setState(StateLoggedOut)
				return ErrUnauthorized
			}
			if ctx.Err() != nil {
				s.setState(StateClosed)
				return ctx.Err()
			}
			failures++
			s.log.Debug("dial failed", slog.Int("failures", failures), sl.Err(err))
			if failures >= s.opts.MaxFailures {
				s.setState(StateDegraded)
			}
			select {
			case <-ctx.Done():
				s.setState(StateClosed)
				return ctx.Err()
			case <-time.After(s.backoff(failures)):
			}
			continue
		}

		failures = 0
		connected = true
		err = s.serve(ctx, conn)
		if ctx.Err() != nil {
			s.setState(StateClosed)
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			s.setState(StateLoggedOut)
			return err
		}
		s.log.With(sl.Err(err)).Debug("connection lost")
	}
}

func (s *Session) serve(ctx context.Context, conn *websocket.Conn) error {
	s.mu.Lock()
	s.conn = conn
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	pool := s.pool
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	s.setState(StateConnected)

	if pool {
		if err := s.write(conn, entity.ControlJoinAgentPool, nil); err != nil {
			return err
		}
	}
	for _, id := range rooms {
		if err := s.write(conn, entity.ControlJoinConversation, entity.JoinConversationControl{ConversationID: id}); err != nil {
			return err
		}
	}

	// Anything sent while we were away is only in the stored history.
	for _, id := range rooms {
		if err := s.resync(ctx, id); err != nil {
			if errors.Is(err, entity.ErrUnauthorized) {
				return ErrUnauthorized
			}
			s.log.With(slog.String("conversation", id), sl.Err(err)).Warn("history resync failed")
		}
	}

	for {
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		s.dispatch(ev.Type, ev.Data)
	}
}

func (s *Session) resync(ctx context.Context, conversationID string) error {
	messages, err := s.api.History(ctx, conversationID)
	if err != nil {
		return err
	}
	if s.list(conversationID).Merge(messages...) > 0 {
		if fn := s.handler(EventHistorySynced); fn != nil {
			raw, _ := json.Marshal(entity.JoinConversationControl{ConversationID: conversationID})
			fn(raw)
		}
	}
	return nil
}

func (s *Session) dispatch(event string, data json.RawMessage) {
	if event == entity.EventMessageArrived {
		var arrived entity.MessageArrivedEvent
		if err := json.Unmarshal(data, &arrived); err == nil {
			s.mu.Lock()
			list := s.lists[arrived.ConversationID]
			s.mu.Unlock()
			if list != nil {
				list.Merge(arrived.Message())
			}
		}
	}
	if fn := s.handler(event); fn != nil {
		fn(data)
	}
}
