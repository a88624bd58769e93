package chat

import (
	"LiveChat/entity"
	"context"
)

type Core interface {
	StartConversation(ctx context.Context, party entity.Party, subject string) (*entity.Conversation, error)
	VisitorHistory(ctx context.Context, id string, party entity.Party) ([]entity.Message, error)
	PostVisitorMessage(ctx context.Context, id string, party entity.Party, body, clientID string) (*entity.Message, error)
}
