package response

import (
	"errors"
	"net/http"

	"LiveChat/entity"

	"github.com/go-chi/render"
)

type Response struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Machine readable error codes, stable across releases.
const (
	CodeValidation   = "validation"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeExists       = "already_exists"
	CodeClosed       = "conversation_closed"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal"
)

func Ok(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

func Error(message string) Response {
	return Response{
		Success: false,
		Code:    CodeInternal,
		Message: message,
	}
}

func ErrorCode(code, message string) Response {
	return Response{
		Success: false,
		Code:    code,
		Message: message,
	}
}

// FromError maps a domain error to an HTTP status and envelope.
func FromError(err error) (int, Response) {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest, ErrorCode(CodeValidation, err.Error())
	case errors.Is(err, entity.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorCode(CodeUnauthorized, err.Error())
	case errors.Is(err, entity.ErrForbidden), errors.Is(err, entity.ErrAgentDisabled):
		return http.StatusForbidden, ErrorCode(CodeForbidden, err.Error())
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound, ErrorCode(CodeNotFound, err.Error())
	case errors.Is(err, entity.ErrConflict):
		return http.StatusConflict, ErrorCode(CodeConflict, err.Error())
	case errors.Is(err, entity.ErrAlreadyExists):
		return http.StatusConflict, ErrorCode(CodeExists, err.Error())
	case errors.Is(err, entity.ErrConversationClosed):
		return http.StatusUnprocessableEntity, ErrorCode(CodeClosed, err.Error())
	case errors.Is(err, entity.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorCode(CodeRateLimited, err.Error())
	default:
		return http.StatusInternalServerError, ErrorCode(CodeInternal, "internal error")
	}
}

// Render writes err as an envelope with the matching status.
func Render(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := FromError(err)
	render.Status(r, status)
	render.JSON(w, r, resp)
}
