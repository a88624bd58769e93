package agent

import (
	"LiveChat/entity"
	"context"
)

type Core interface {
	Login(ctx context.Context, username, password string) (*entity.AgentSession, error)
	Me(agent *entity.Agent) *entity.Agent
	AgentConversations(ctx context.Context, agent *entity.Agent, status entity.ConversationStatus) ([]entity.Conversation, error)
	ClaimConversation(ctx context.Context, id string, agent *entity.Agent) (*entity.Conversation, error)
	CloseByAgent(ctx context.Context, id string, agent *entity.Agent) (*entity.Conversation, error)
	AgentHistory(ctx context.Context, id string, agent *entity.Agent) ([]entity.Message, error)
	PostAgentMessage(ctx context.Context, id string, agent *entity.Agent, body, clientID string) (*entity.Message, error)
}
