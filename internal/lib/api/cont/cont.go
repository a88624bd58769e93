package cont

import (
	"LiveChat/entity"
	"context"
)

type ctxKey string

const (
	agentKey ctxKey = "agent"
	partyKey ctxKey = "party"
)

func PutAgent(ctx context.Context, agent *entity.Agent) context.Context {
	return context.WithValue(ctx, agentKey, agent)
}

func GetAgent(ctx context.Context) *entity.Agent {
	agent, ok := ctx.Value(agentKey).(*entity.Agent)
	if !ok {
		return nil
	}
	return agent
}

func PutParty(ctx context.Context, party entity.Party) context.Context {
	return context.WithValue(ctx, partyKey, party)
}

func GetParty(ctx context.Context) (entity.Party, bool) {
	party, ok := ctx.Value(partyKey).(entity.Party)
	return party, ok
}
