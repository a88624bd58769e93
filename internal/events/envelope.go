package events

import (
	"time"

	"github.com/google/uuid"
)

// Producer is stamped on every envelope this service emits.
const Producer = "livechat"

// Lifecycle event types; they double as routing keys.
const (
	ConversationCreated  = "conversation.created.v1"
	ConversationAssigned = "conversation.assigned.v1"
	ConversationClosed   = "conversation.closed.v1"
)

type Meta struct {
	// Unique event ID
	ID string `json:"id"`
	// Event name and version, e.g. conversation.created.v1
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Producer string    `json:"producer"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

func NewEnvelope(eventType string, data any) Envelope {
	return Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Type:     eventType,
			Time:     time.Now().UTC(),
			Producer: Producer,
		},
		Data: data,
	}
}

type ConversationCreatedData struct {
	ConversationID string    `json:"conversation_id"`
	PartyKind      string    `json:"party_kind"`
	PartyName      string    `json:"party_name"`
	Subject        string    `json:"subject,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationAssignedData struct {
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
	AgentName      string    `json:"agent_name"`
	AssignedAt     time.Time `json:"assigned_at"`
}

type ConversationClosedData struct {
	ConversationID string    `json:"conversation_id"`
	ClosedBy       string    `json:"closed_by"`
	ClosedAt       time.Time `json:"closed_at"`
}
