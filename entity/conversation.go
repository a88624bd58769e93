package entity

import (
	"time"
)

type ConversationStatus string

const (
	StatusWaiting ConversationStatus = "waiting"
	StatusActive  ConversationStatus = "active"
	StatusClosed  ConversationStatus = "closed"
)

// ClosedBySystem marks conversations closed by the service rather than an agent.
const ClosedBySystem = "system"

func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusClosed:
		return true
	}
	return false
}

type AgentRef struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
}

type Conversation struct {
	ID            string             `json:"id" bson:"_id"`
	Party         Party              `json:"party" bson:"party"`
	PartyKey      string             `json:"-" bson:"party_key"`
	Subject       string             `json:"subject,omitempty" bson:"subject,omitempty"`
	Status        ConversationStatus `json:"status" bson:"status"`
	Agent         *AgentRef          `json:"agent,omitempty" bson:"agent,omitempty"`
	LastMessage   string             `json:"last_message,omitempty" bson:"last_message,omitempty"`
	LastMessageAt *time.Time         `json:"last_message_at,omitempty" bson:"last_message_at,omitempty"`
	ClosedBy      string             `json:"closed_by,omitempty" bson:"closed_by,omitempty"`
	ClosedAt      *time.Time         `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

func (c *Conversation) IsClosed() bool {
	return c.Status == StatusClosed
}

// AssignedTo reports whether agentID currently holds the conversation.
func (c *Conversation) AssignedTo(agentID string) bool {
	return c.Agent != nil && c.Agent.ID == agentID
}

type ConversationFilter struct {
	Status  ConversationStatus
	AgentID string
	Page    int
	Limit   int
}

// Normalize clamps paging to sane bounds.
func (f *ConversationFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
}

func (f *ConversationFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type ConversationPage struct {
	Items []Conversation `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

type ConversationDetail struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
}
