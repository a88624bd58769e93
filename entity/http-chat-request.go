package entity

import (
	"LiveChat/internal/lib/validate"
	"net/http"
)

type StartRequest struct {
	Name    string `json:"name" validate:"omitempty,max=100"`
	Email   string `json:"email" validate:"omitempty,email"`
	Subject string `json:"subject" validate:"omitempty,max=200"`
	Source  string `json:"source" validate:"omitempty,max=500"`
}

func (s *StartRequest) Bind(_ *http.Request) error {
	return validate.Struct(s)
}

type PostMessageRequest struct {
	Body     string `json:"body" validate:"required"`
	ClientID string `json:"client_id" validate:"omitempty,max=64"`
}

func (p *PostMessageRequest) Bind(_ *http.Request) error {
	return validate.Struct(p)
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (l *LoginRequest) Bind(_ *http.Request) error {
	return validate.Struct(l)
}

type AgentCreateRequest struct {
	Username    string    `json:"username" validate:"required,min=3,max=64"`
	Password    string    `json:"password" validate:"required,min=8,max=72"`
	DisplayName string    `json:"display_name" validate:"required,max=100"`
	Role        AgentRole `json:"role" validate:"omitempty,oneof=agent admin"`
}

func (a *AgentCreateRequest) Bind(_ *http.Request) error {
	return validate.Struct(a)
}

type AgentUpdateRequest struct {
	Password    *string    `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
	DisplayName *string    `json:"display_name,omitempty" validate:"omitempty,max=100"`
	Role        *AgentRole `json:"role,omitempty" validate:"omitempty,oneof=agent admin"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

func (a *AgentUpdateRequest) Bind(_ *http.Request) error {
	return validate.Struct(a)
}
