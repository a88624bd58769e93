package core

import (
	"LiveChat/entity"
	"LiveChat/internal/events"
	"LiveChat/internal/lib/sl"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const sweepBatch = 100

// StartConversation returns the party's open conversation or opens a new
// waiting one. Calling it again for the same party is a no-op until the
// conversation is closed.
func (c *Core) StartConversation(ctx context.Context, party entity.Party, subject string) (*entity.Conversation, error) {
	if err := party.Validate(); err != nil {
		return nil, err
	}

	now := c.now()
	conv := &entity.Conversation{
		ID:        uuid.NewString(),
		Party:     party,
		PartyKey:  party.Key(),
		Subject:   subject,
		Status:    entity.StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	conv, created, err := c.repo.StartConversation(ctx, conv)
	if err != nil {
		return nil, err
	}
	if !created {
		return conv, nil
	}

	c.log.With(
		slog.String("conversation", conv.ID),
		slog.String("party", string(party.Kind)),
	).Info("conversation started")

	c.broadcast(entity.AgentPoolRoom, entity.EventConversationCreated, entity.ConversationCreatedEvent{
		ConversationID: conv.ID,
		VisitorName:    party.DisplayName(),
		Subject:        conv.Subject,
		CreatedAt:      conv.CreatedAt,
	})
	c.publish(ctx, events.ConversationCreated, events.ConversationCreatedData{
		ConversationID: conv.ID,
		PartyKind:      string(party.Kind),
		PartyName:      party.DisplayName(),
		Subject:        conv.Subject,
		CreatedAt:      conv.CreatedAt,
	})
	return conv, nil
}

func (c *Core) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	return c.repo.GetConversation(ctx, id)
}

func (c *Core) ListConversations(ctx context.Context, filter entity.ConversationFilter) (*entity.ConversationPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrValidation, filter.Status)
	}
	return c.repo.ListConversations(ctx, filter)
}

// ConversationDetail returns a conversation with its full history.
func (c *Core) ConversationDetail(ctx context.Context, id string) (*entity.ConversationDetail, error) {
	conv, err := c.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := c.repo.GetMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &entity.ConversationDetail{Conversation: conv, Messages: messages}, nil
}

// AgentConversations lists what an agent works on. The waiting status
// returns the shared queue; any other filter is limited to the agent's own
// conversations.
func (c *Core) AgentConversations(ctx context.Context, agent *entity.Agent, status entity.ConversationStatus) ([]entity.Conversation, error) {
	filter := entity.ConversationFilter{Status: status, Limit: 100}
	if status != entity.StatusWaiting {
		filter.AgentID = agent.ID
	}
	page, err := c.ListConversations(ctx, filter)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// ClaimConversation assigns a waiting conversation to agent. Of several
// concurrent claimants exactly one succeeds; the others get entity.ErrConflict.
func (c *Core) ClaimConversation(ctx context.Context, id string, agent *entity.Agent) (*entity.Conversation, error) {
	conv, err := c.repo.ClaimConversation(ctx, id, agent.Ref(), c.now())
	if err != nil {
		return nil, err
	}

	c.log.With(
		slog.String("conversation", conv.ID),
		slog.String("agent", agent.Username),
	).Info("conversation claimed")

	c.broadcast(entity.ConversationRoom(conv.ID), entity.EventAgentJoined, entity.AgentJoinedEvent{
		ConversationID: conv.ID,
		AgentName:      agent.DisplayName,
	})
	c.broadcast(entity.AgentPoolRoom, entity.EventConversationUpdated, entity.NewConversationUpdated(conv))
	c.publish(ctx, events.ConversationAssigned, events.ConversationAssignedData{
		ConversationID: conv.ID,
		AgentID:        agent.ID,
		AgentName:      agent.DisplayName,
		AssignedAt:     conv.UpdatedAt,
	})
	return conv, nil
}

// CloseByAgent closes a conversation on behalf of an agent. An active
// conversation may only be closed by its assignee or an admin; the
// assignment check and the close are one store write.
func (c *Core) CloseByAgent(ctx context.Context, id string, agent *entity.Agent) (*entity.Conversation, error) {
	if agent.IsAdmin() {
		return c.CloseConversation(ctx, id, agent.ID)
	}
	conv, changed, err := c.repo.CloseConversationAs(ctx, id, agent.ID, c.now())
	if err != nil {
		return nil, err
	}
	return c.closed(ctx, conv, changed, agent.ID)
}

// CloseConversation is idempotent: closing a closed conversation returns it
// unchanged and emits nothing.
func (c *Core) CloseConversation(ctx context.Context, id, closedBy string) (*entity.Conversation, error) {
	conv, changed, err := c.repo.CloseConversation(ctx, id, closedBy, c.now())
	if err != nil {
		return nil, err
	}
	return c.closed(ctx, conv, changed, closedBy)
}

func (c *Core) closed(ctx context.Context, conv *entity.Conversation, changed bool, closedBy string) (*entity.Conversation, error) {
	if !changed {
		return conv, nil
	}

	c.log.With(
		slog.String("conversation", conv.ID),
		slog.String("closed_by", closedBy),
	).Info("conversation closed")

	c.broadcast(entity.ConversationRoom(conv.ID), entity.EventConversationClosed, entity.ConversationClosedEvent{
		ConversationID: conv.ID,
		ClosedBy:       closedBy,
	})
	c.broadcast(entity.AgentPoolRoom, entity.EventConversationUpdated, entity.NewConversationUpdated(conv))
	closedAt := conv.UpdatedAt
	if conv.ClosedAt != nil {
		closedAt = *conv.ClosedAt
	}
	c.publish(ctx, events.ConversationClosed, events.ConversationClosedData{
		ConversationID: conv.ID,
		ClosedBy:       closedBy,
		ClosedAt:       closedAt,
	})
	return conv, nil
}

// SweepStale closes conversations idle for longer than staleAfter and
// returns how many were closed.
func (c *Core) SweepStale(ctx context.Context, staleAfter time.Duration) int {
	stale, err := c.repo.ListStaleConversations(ctx, c.now().Add(-staleAfter), sweepBatch)
	if err != nil {
		c.log.With(sl.Err(err)).Error("list stale conversations")
		return 0
	}
	closed := 0
	for _, conv := range stale {
		if _, err = c.CloseConversation(ctx, conv.ID, entity.ClosedBySystem); err != nil {
			c.log.With(
				slog.String("conversation", conv.ID),
				sl.Err(err),
			).Warn("close stale conversation")
			continue
		}
		closed++
	}
	if closed > 0 {
		c.log.With(slog.Int("count", closed)).Info("stale conversations closed")
	}
	return closed
}
