package entity

import (
	"time"
)

type AgentRole string

const (
	RoleAgent AgentRole = "agent"
	RoleAdmin AgentRole = "admin"
)

type Agent struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	DisplayName  string    `json:"display_name" bson:"display_name"`
	Role         AgentRole `json:"role" bson:"role"`
	IsActive     bool      `json:"is_active" bson:"is_active"`
	IsOnline     bool      `json:"is_online" bson:"-"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

func (a *Agent) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a *Agent) Ref() *AgentRef {
	return &AgentRef{ID: a.ID, Name: a.DisplayName}
}

// AgentSession is the login result. PollSeconds is how often dashboards
// should reconcile their conversation lists.
type AgentSession struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	PollSeconds int       `json:"poll_interval_seconds"`
	Agent       *Agent    `json:"agent"`
}
