package token

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret-key-for-jwt-signing")

	signed, expires, err := issuer.Generate("agent-1", "admin", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := issuer.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestIssuer_Account(t *testing.T) {
	issuer := NewIssuer("accounts")

	signed, err := issuer.GenerateAccount("42", "Bob", "bob@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := issuer.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "Bob", claims.Name)
	assert.Equal(t, "bob@example.com", claims.Email)
}

func TestIssuer_Invalid(t *testing.T) {
	issuer := NewIssuer("secret")
	other := NewIssuer("different-secret")
	foreign, _, err := other.Generate("agent-1", "agent", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage token", "not-a-jwt-token"},
		{"malformed JWT", "header.payload.signature"},
		{"wrong secret", foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}

func TestIssuer_Expired(t *testing.T) {
	issuer := NewIssuer("secret")

	signed, _, err := issuer.Generate("agent-1", "agent", -time.Minute)
	require.NoError(t, err)

	_, err = issuer.Verify(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
