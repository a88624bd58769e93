package entity

import (
	"time"
)

type SenderType string

const (
	SenderUser   SenderType = "user"
	SenderAgent  SenderType = "agent"
	SenderSystem SenderType = "system"
)

// MaxBodyLength is the default body limit in runes.
const MaxBodyLength = 4000

// Message is one immutable entry of a conversation's log.
type Message struct {
	ID             string     `json:"id" bson:"_id"`
	ConversationID string     `json:"conversation_id" bson:"conversation_id"`
	SenderType     SenderType `json:"sender_type" bson:"sender_type"`
	AgentID        string     `json:"agent_id,omitempty" bson:"agent_id,omitempty"`
	AgentName      string     `json:"agent_name,omitempty" bson:"agent_name,omitempty"`
	Body           string     `json:"body" bson:"body"`
	ClientID       string     `json:"client_id,omitempty" bson:"client_id,omitempty"`
	Read           bool       `json:"read" bson:"read"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
}

// Before orders messages by creation time, then id.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
