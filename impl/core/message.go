package core

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/sl"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

func (c *Core) validateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: message body is empty", entity.ErrValidation)
	}
	if utf8.RuneCountInString(body) > c.maxBody {
		return "", fmt.Errorf("%w: message body exceeds %d characters", entity.ErrValidation, c.maxBody)
	}
	return body, nil
}

// partyConversation loads a conversation and checks that party owns it.
func (c *Core) partyConversation(ctx context.Context, id string, party entity.Party) (*entity.Conversation, error) {
	conv, err := c.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.Party.Same(party) {
		return nil, fmt.Errorf("%w: conversation belongs to another party", entity.ErrForbidden)
	}
	return conv, nil
}

// CanAgentView reports whether agent may read a conversation and join its room.
func CanAgentView(agent *entity.Agent, conv *entity.Conversation) bool {
	switch {
	case agent.IsAdmin():
		return true
	case conv.Status == entity.StatusWaiting:
		return true
	case conv.AssignedTo(agent.ID):
		return true
	}
	return conv.ClosedBy == agent.ID
}

func (c *Core) agentConversation(ctx context.Context, id string, agent *entity.Agent) (*entity.Conversation, error) {
	conv, err := c.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAgentView(agent, conv) {
		return nil, fmt.Errorf("%w: conversation is assigned to another agent", entity.ErrForbidden)
	}
	return conv, nil
}

// PartyConversation returns a conversation if party owns it.
func (c *Core) PartyConversation(ctx context.Context, id string, party entity.Party) (*entity.Conversation, error) {
	return c.partyConversation(ctx, id, party)
}

// AgentConversation returns a conversation if agent may view it.
func (c *Core) AgentConversation(ctx context.Context, id string, agent *entity.Agent) (*entity.Conversation, error) {
	return c.agentConversation(ctx, id, agent)
}

// VisitorHistory returns the log of the party's own conversation and marks
// agent replies as read.
func (c *Core) VisitorHistory(ctx context.Context, id string, party entity.Party) ([]entity.Message, error) {
	if _, err := c.partyConversation(ctx, id, party); err != nil {
		return nil, err
	}
	messages, err := c.repo.GetMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	c.markRead(ctx, id, entity.SenderAgent)
	return messages, nil
}

// AgentHistory returns the log of a conversation the agent may view. The
// visitor's messages are marked read only for the assignee.
func (c *Core) AgentHistory(ctx context.Context, id string, agent *entity.Agent) ([]entity.Message, error) {
	conv, err := c.agentConversation(ctx, id, agent)
	if err != nil {
		return nil, err
	}
	messages, err := c.repo.GetMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.AssignedTo(agent.ID) {
		c.markRead(ctx, id, entity.SenderUser)
	}
	return messages, nil
}

func (c *Core) markRead(ctx context.Context, id string, sender entity.SenderType) {
	if err := c.repo.MarkRead(ctx, id, sender); err != nil {
		c.log.With(
			slog.String("conversation", id),
			sl.Err(err),
		).Debug("mark read")
	}
}

// PostVisitorMessage appends a message from the conversation's party.
func (c *Core) PostVisitorMessage(ctx context.Context, id string, party entity.Party, body, clientID string) (*entity.Message, error) {
	body, err := c.validateBody(body)
	if err != nil {
		return nil, err
	}
	conv, err := c.partyConversation(ctx, id, party)
	if err != nil {
		return nil, err
	}
	if conv.IsClosed() {
		return nil, fmt.Errorf("conversation %s: %w", conv.ID, entity.ErrConversationClosed)
	}
	if err = c.allow(ctx, party.Key()); err != nil {
		return nil, err
	}

	msg := &entity.Message{
		ConversationID: conv.ID,
		SenderType:     entity.SenderUser,
		Body:           body,
		ClientID:       clientID,
	}
	return c.appendMessage(ctx, msg)
}

// PostAgentMessage appends a message from an agent. A waiting conversation
// has to be claimed first; an active one only accepts its assignee or an
// admin.
func (c *Core) PostAgentMessage(ctx context.Context, id string, agent *entity.Agent, body, clientID string) (*entity.Message, error) {
	body, err := c.validateBody(body)
	if err != nil {
		return nil, err
	}
	conv, err := c.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case conv.IsClosed():
		return nil, fmt.Errorf("conversation %s: %w", conv.ID, entity.ErrConversationClosed)
	case conv.Status == entity.StatusWaiting:
		return nil, fmt.Errorf("%w: claim the conversation before replying", entity.ErrForbidden)
	case !conv.AssignedTo(agent.ID) && !agent.IsAdmin():
		return nil, fmt.Errorf("%w: conversation is assigned to another agent", entity.ErrForbidden)
	}

	msg := &entity.Message{
		ConversationID: conv.ID,
		SenderType:     entity.SenderAgent,
		AgentID:        agent.ID,
		AgentName:      agent.DisplayName,
		Body:           body,
		ClientID:       clientID,
	}
	return c.appendMessage(ctx, msg)
}

// appendMessage persists msg and only then fans it out, so every event a
// client sees is already in history.
func (c *Core) appendMessage(ctx context.Context, msg *entity.Message) (*entity.Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	msg.ID = id.String()
	msg.CreatedAt = c.now()

	conv, err := c.repo.AppendMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	c.broadcast(entity.ConversationRoom(conv.ID), entity.EventMessageArrived, entity.NewMessageArrived(msg))
	update := entity.NewConversationUpdated(conv)
	update.UpdatedAt = msg.CreatedAt
	c.broadcast(entity.AgentPoolRoom, entity.EventConversationUpdated, update)
	return msg, nil
}

func (c *Core) allow(ctx context.Context, key string) error {
	if c.limiter == nil {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, key)
	if err != nil {
		c.log.With(sl.Err(err)).Warn("rate limiter unavailable")
		return nil
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, entity.ErrRateLimited)
	}
	return nil
}
