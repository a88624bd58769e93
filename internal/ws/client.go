package ws

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/api/response"
	"LiveChat/internal/lib/sl"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Core is what the socket endpoint needs to authenticate and authorize.
type Core interface {
	AuthenticateAgent(ctx context.Context, token string) (*entity.Agent, error)
	AuthenticateAccount(token string) (entity.Party, error)
	PartyConversation(ctx context.Context, id string, party entity.Party) (*entity.Conversation, error)
	AgentConversation(ctx context.Context, id string, agent *entity.Agent) (*entity.Conversation, error)
}

// Client is a single WebSocket connection of an agent, account or visitor.
type Client struct {
	id    string
	hub   *Hub
	core  Core
	conn  *websocket.Conn
	agent *entity.Agent
	party *entity.Party
	log   *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) AgentID() string {
	if c.agent == nil {
		return ""
	}
	return c.agent.ID
}

func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close ends the write pump, which closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) reply(eventType string, payload interface{}) {
	data, err := json.Marshal(entity.Event{Type: eventType, Data: payload})
	if err != nil {
		return
	}
	c.Enqueue(data)
}

func (c *Client) replyError(err error) {
	_, resp := response.FromError(err)
	c.reply(entity.EventError, entity.ErrorEvent{Code: resp.Code, Message: resp.Message})
}

// readPump handles control events and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.Drop(c)
		c.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.With(sl.Err(err)).Debug("websocket read")
			}
			return
		}
		c.handleControl(raw)
	}
}

// writePump moves queued events to the socket and keeps it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type controlEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) handleControl(raw []byte) {
	var event controlEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		c.replyError(fmt.Errorf("%w: malformed event", entity.ErrValidation))
		return
	}

	switch event.Type {
	case entity.ControlJoinConversation:
		room, err := c.authorizeConversation(event.Data)
		if err != nil {
			c.replyError(err)
			return
		}
		c.hub.Join(c, room)
		c.reply(entity.EventJoined, entity.JoinedEvent{Room: room})

	case entity.ControlLeaveConversation:
		var data entity.JoinConversationControl
		if err := json.Unmarshal(event.Data, &data); err != nil || data.ConversationID == "" {
			c.replyError(fmt.Errorf("%w: conversation_id is required", entity.ErrValidation))
			return
		}
		room := entity.ConversationRoom(data.ConversationID)
		c.hub.Leave(c, room)
		c.reply(entity.EventLeft, entity.JoinedEvent{Room: room})

	case entity.ControlJoinAgentPool:
		if c.agent == nil {
			c.replyError(fmt.Errorf("%w: only agents may join the agent pool", entity.ErrForbidden))
			return
		}
		c.hub.Join(c, entity.AgentPoolRoom)
		c.reply(entity.EventJoined, entity.JoinedEvent{Room: entity.AgentPoolRoom})

	default:
		c.replyError(fmt.Errorf("%w: unknown event %q", entity.ErrValidation, event.Type))
	}
}

func (c *Client) authorizeConversation(raw json.RawMessage) (string, error) {
	var data entity.JoinConversationControl
	if err := json.Unmarshal(raw, &data); err != nil || data.ConversationID == "" {
		return "", fmt.Errorf("%w: conversation_id is required", entity.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch {
	case c.agent != nil:
		_, err = c.core.AgentConversation(ctx, data.ConversationID, c.agent)
	case c.party != nil:
		_, err = c.core.PartyConversation(ctx, data.ConversationID, *c.party)
	default:
		err = entity.ErrUnauthorized
	}
	if err != nil {
		return "", err
	}
	return entity.ConversationRoom(data.ConversationID), nil
}

// authenticate resolves the connection identity from query parameters:
// token for agents, account_token for accounts and session for visitors.
func authenticate(r *http.Request, core Core) (*entity.Agent, *entity.Party, error) {
	query := r.URL.Query()
	switch {
	case query.Get("token") != "":
		agent, err := core.AuthenticateAgent(r.Context(), query.Get("token"))
		return agent, nil, err
	case query.Get("account_token") != "":
		party, err := core.AuthenticateAccount(query.Get("account_token"))
		if err != nil {
			return nil, nil, err
		}
		return nil, &party, nil
	case query.Get("session") != "":
		party := entity.NewVisitorParty(entity.VisitorParty{
			SessionID: query.Get("session"),
			Name:      query.Get("name"),
		})
		return nil, &party, nil
	}
	return nil, nil, entity.ErrUnauthorized
}

// ServeWs upgrades an authenticated request. Authentication failures are
// answered with 401 before the upgrade so clients can tell them apart from
// transport errors.
func ServeWs(hub *Hub, core Core, sendBuffer int, log *slog.Logger, w http.ResponseWriter, r *http.Request) {
	agent, party, err := authenticate(r, core)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, entity.ErrUnauthorized) {
			status, _ = response.FromError(err)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.With(sl.Err(err)).Error("websocket upgrade failed")
		return
	}
	if sendBuffer <= 0 {
		sendBuffer = 256
	}

	client := &Client{
		id:    uuid.NewString(),
		hub:   hub,
		core:  core,
		conn:  conn,
		agent: agent,
		party: party,
		send:  make(chan []byte, sendBuffer),
		log:   log,
	}
	hub.Register(client)

	go client.writePump()
	go client.readPump()
}
