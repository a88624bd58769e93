package entity

import (
	"fmt"
	"strings"
)

type PartyKind string

const (
	PartyAccount PartyKind = "account"
	PartyVisitor PartyKind = "visitor"
)

// AccountParty is a user resolved by the surrounding account system.
type AccountParty struct {
	ID    string `json:"id" bson:"id"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
}

// VisitorParty is an anonymous site visitor identified by a client generated session token.
type VisitorParty struct {
	SessionID string `json:"session_id" bson:"session_id"`
	Name      string `json:"name" bson:"name"`
	Email     string `json:"email,omitempty" bson:"email,omitempty"`
	IP        string `json:"ip,omitempty" bson:"ip,omitempty"`
	Source    string `json:"source,omitempty" bson:"source,omitempty"`
	UserAgent string `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
}

// Party is the other side of a conversation. Exactly one of Account or
// Visitor is set, matching Kind.
type Party struct {
	Kind    PartyKind     `json:"kind" bson:"kind"`
	Account *AccountParty `json:"account,omitempty" bson:"account,omitempty"`
	Visitor *VisitorParty `json:"visitor,omitempty" bson:"visitor,omitempty"`
}

func NewAccountParty(a AccountParty) Party {
	return Party{Kind: PartyAccount, Account: &a}
}

func NewVisitorParty(v VisitorParty) Party {
	return Party{Kind: PartyVisitor, Visitor: &v}
}

// Key identifies the party across page loads; it is what makes start idempotent.
func (p Party) Key() string {
	switch p.Kind {
	case PartyAccount:
		if p.Account != nil {
			return "account:" + p.Account.ID
		}
	case PartyVisitor:
		if p.Visitor != nil {
			return "visitor:" + p.Visitor.SessionID
		}
	}
	return ""
}

func (p Party) DisplayName() string {
	switch {
	case p.Kind == PartyAccount && p.Account != nil:
		return p.Account.Name
	case p.Kind == PartyVisitor && p.Visitor != nil:
		if p.Visitor.Name != "" {
			return p.Visitor.Name
		}
		return "Visitor"
	}
	return ""
}

func (p Party) Validate() error {
	switch p.Kind {
	case PartyAccount:
		if p.Account == nil || p.Visitor != nil {
			return fmt.Errorf("%w: account party must carry only account fields", ErrValidation)
		}
		if strings.TrimSpace(p.Account.ID) == "" {
			return fmt.Errorf("%w: account id is required", ErrValidation)
		}
	case PartyVisitor:
		if p.Visitor == nil || p.Account != nil {
			return fmt.Errorf("%w: visitor party must carry only visitor fields", ErrValidation)
		}
		if strings.TrimSpace(p.Visitor.SessionID) == "" {
			return fmt.Errorf("%w: visitor session id is required", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown party kind %q", ErrValidation, p.Kind)
	}
	return nil
}

// Same reports whether two parties denote the same identity.
func (p Party) Same(other Party) bool {
	return p.Key() != "" && p.Key() == other.Key()
}
