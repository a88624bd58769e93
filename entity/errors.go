package entity

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conversation already claimed")
	ErrConversationClosed = errors.New("conversation is closed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrAgentDisabled      = errors.New("agent is disabled")
)

// ErrAlreadyExists is returned when a unique attribute, like an agent username, is taken.
var ErrAlreadyExists = errors.New("already exists")

var ErrRateLimited = errors.New("too many messages, slow down")
