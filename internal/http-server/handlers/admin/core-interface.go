package admin

import (
	"LiveChat/entity"
	"context"
)

type Core interface {
	CreateAgent(ctx context.Context, req *entity.AgentCreateRequest) (*entity.Agent, error)
	ListAgents(ctx context.Context) ([]entity.Agent, error)
	GetAgent(ctx context.Context, id string) (*entity.Agent, error)
	UpdateAgent(ctx context.Context, actor *entity.Agent, id string, req *entity.AgentUpdateRequest) (*entity.Agent, error)
	DisableAgent(ctx context.Context, actor *entity.Agent, id string) (*entity.Agent, error)
	DeleteAgent(ctx context.Context, actor *entity.Agent, id string) error

	ListConversations(ctx context.Context, filter entity.ConversationFilter) (*entity.ConversationPage, error)
	ConversationDetail(ctx context.Context, id string) (*entity.ConversationDetail, error)
}
