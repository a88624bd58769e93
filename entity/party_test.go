package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParty_Key(t *testing.T) {
	v := NewVisitorParty(VisitorParty{SessionID: "v1", Name: "Ann"})
	a := NewAccountParty(AccountParty{ID: "42", Name: "Bob"})

	assert.Equal(t, "visitor:v1", v.Key())
	assert.Equal(t, "account:42", a.Key())
	assert.False(t, v.Same(a))
	assert.True(t, v.Same(NewVisitorParty(VisitorParty{SessionID: "v1"})))
}

func TestParty_Validate(t *testing.T) {
	tests := []struct {
		name  string
		party Party
		ok    bool
	}{
		{"visitor", NewVisitorParty(VisitorParty{SessionID: "v1"}), true},
		{"account", NewAccountParty(AccountParty{ID: "1"}), true},
		{"empty session", NewVisitorParty(VisitorParty{}), false},
		{"empty account id", NewAccountParty(AccountParty{}), false},
		{"both modes", Party{Kind: PartyVisitor, Visitor: &VisitorParty{SessionID: "v"}, Account: &AccountParty{ID: "1"}}, false},
		{"unknown kind", Party{Kind: "robot"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.party.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrValidation))
			}
		})
	}
}

func TestParty_DisplayName(t *testing.T) {
	assert.Equal(t, "Visitor", NewVisitorParty(VisitorParty{SessionID: "v1"}).DisplayName())
	assert.Equal(t, "Bob", NewAccountParty(AccountParty{ID: "1", Name: "Bob"}).DisplayName())
}
