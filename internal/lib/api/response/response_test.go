package response

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"LiveChat/entity"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: body is empty", entity.ErrValidation), http.StatusBadRequest, CodeValidation},
		{entity.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{entity.ErrAgentDisabled, http.StatusForbidden, CodeForbidden},
		{fmt.Errorf("claim: %w", entity.ErrConflict), http.StatusConflict, CodeConflict},
		{entity.ErrConversationClosed, http.StatusUnprocessableEntity, CodeClosed},
		{entity.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{fmt.Errorf("visitor:v1: %w", entity.ErrRateLimited), http.StatusTooManyRequests, CodeRateLimited},
		{fmt.Errorf("agent bob: %w", entity.ErrAlreadyExists), http.StatusConflict, CodeExists},
		{fmt.Errorf("mongodb insert error"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		status, resp := FromError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, resp.Code, tt.err.Error())
		assert.False(t, resp.Success)
	}
}

func TestFromError_HidesInternalDetails(t *testing.T) {
	_, resp := FromError(fmt.Errorf("mongodb connect error: secret host"))
	assert.Equal(t, "internal error", resp.Message)
}
