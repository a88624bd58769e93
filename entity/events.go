package entity

import (
	"time"
)

// Server to client events.
const (
	EventConversationCreated = "conversation_created"
	EventConversationUpdated = "conversation_updated"
	EventMessageArrived      = "message_arrived"
	EventAgentJoined         = "agent_joined"
	EventConversationClosed  = "conversation_closed"
	EventJoined              = "joined"
	EventLeft                = "left"
	EventError               = "error"
)

// Client to server control events.
const (
	ControlJoinConversation  = "join_conversation"
	ControlLeaveConversation = "leave_conversation"
	ControlJoinAgentPool     = "join_agent_pool"
)

// AgentPoolRoom is joined by every connected agent session.
const AgentPoolRoom = "agents"

func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// Event is the envelope of every frame on the socket, in both directions.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type ConversationCreatedEvent struct {
	ConversationID string    `json:"conversation_id"`
	VisitorName    string    `json:"visitor_name"`
	Subject        string    `json:"subject,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationUpdatedEvent struct {
	ConversationID string             `json:"conversation_id"`
	Status         ConversationStatus `json:"status"`
	AgentID        string             `json:"agent_id,omitempty"`
	LastMessage    string             `json:"last_message,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type MessageArrivedEvent struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderType     SenderType `json:"sender_type"`
	AgentID        string     `json:"agent_id,omitempty"`
	AgentName      string     `json:"agent_name,omitempty"`
	Body           string     `json:"body"`
	ClientID       string     `json:"client_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type AgentJoinedEvent struct {
	ConversationID string `json:"conversation_id"`
	AgentName      string `json:"agent_name"`
}

type ConversationClosedEvent struct {
	ConversationID string `json:"conversation_id"`
	ClosedBy       string `json:"closed_by"`
}

type JoinedEvent struct {
	Room string `json:"room"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type JoinConversationControl struct {
	ConversationID string `json:"conversation_id"`
}

func NewMessageArrived(m *Message) MessageArrivedEvent {
	return MessageArrivedEvent{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderType:     m.SenderType,
		AgentID:        m.AgentID,
		AgentName:      m.AgentName,
		Body:           m.Body,
		ClientID:       m.ClientID,
		CreatedAt:      m.CreatedAt,
	}
}

// Message rebuilds the log entry carried by the event.
func (e MessageArrivedEvent) Message() Message {
	return Message{
		ID:             e.ID,
		ConversationID: e.ConversationID,
		SenderType:     e.SenderType,
		AgentID:        e.AgentID,
		AgentName:      e.AgentName,
		Body:           e.Body,
		ClientID:       e.ClientID,
		CreatedAt:      e.CreatedAt,
	}
}

func NewConversationUpdated(c *Conversation) ConversationUpdatedEvent {
	ev := ConversationUpdatedEvent{
		ConversationID: c.ID,
		Status:         c.Status,
		LastMessage:    c.LastMessage,
		UpdatedAt:      c.UpdatedAt,
	}
	if c.Agent != nil {
		ev.AgentID = c.Agent.ID
	}
	return ev
}
