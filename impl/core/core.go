package core

import (
	"LiveChat/entity"
	"LiveChat/internal/events"
	"LiveChat/internal/lib/sl"
	"LiveChat/internal/lib/token"
	"context"
	"log/slog"
	"time"
)

type Repository interface {
	StartConversation(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*entity.Conversation, error)
	ListConversations(ctx context.Context, filter entity.ConversationFilter) (*entity.ConversationPage, error)
	ClaimConversation(ctx context.Context, id string, agent *entity.AgentRef, now time.Time) (*entity.Conversation, error)
	CloseConversation(ctx context.Context, id, closedBy string, now time.Time) (*entity.Conversation, bool, error)
	// CloseConversationAs closes only a waiting conversation or one assigned
	// to agentID, checked in the same write.
	CloseConversationAs(ctx context.Context, id, agentID string, now time.Time) (*entity.Conversation, bool, error)
	ListStaleConversations(ctx context.Context, before time.Time, limit int) ([]entity.Conversation, error)

	AppendMessage(ctx context.Context, msg *entity.Message) (*entity.Conversation, error)
	GetMessages(ctx context.Context, conversationID string) ([]entity.Message, error)
	MarkRead(ctx context.Context, conversationID string, sender entity.SenderType) error

	CreateAgent(ctx context.Context, agent *entity.Agent) error
	GetAgent(ctx context.Context, id string) (*entity.Agent, error)
	GetAgentByUsername(ctx context.Context, username string) (*entity.Agent, error)
	ListAgents(ctx context.Context) ([]entity.Agent, error)
	UpdateAgent(ctx context.Context, agent *entity.Agent) error
	DeleteAgent(ctx context.Context, id string) error
}

// Broadcaster delivers real-time events to rooms and knows which agents
// hold a live connection.
type Broadcaster interface {
	Broadcast(room, eventType string, payload interface{})
	IsOnline(agentID string) bool
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, msg events.Envelope) error
}

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Core struct {
	repo      Repository
	router    Broadcaster
	publisher EventPublisher
	limiter   Limiter
	agentKeys *token.Issuer
	accounts  *token.Issuer
	tokenTTL  time.Duration
	maxBody   int
	poll      time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func New(log *slog.Logger) *Core {
	return &Core{
		log:      log.With(sl.Module("core")),
		tokenTTL: 12 * time.Hour,
		maxBody:  entity.MaxBodyLength,
		poll:     15 * time.Second,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (c *Core) SetRepository(repo Repository) {
	c.repo = repo
}

func (c *Core) SetBroadcaster(router Broadcaster) {
	c.router = router
}

func (c *Core) SetEventPublisher(publisher EventPublisher) {
	c.publisher = publisher
}

func (c *Core) SetLimiter(limiter Limiter) {
	c.limiter = limiter
}

// SetAuthKey configures signing of agent session tokens.
func (c *Core) SetAuthKey(secret string, ttl time.Duration) {
	c.agentKeys = token.NewIssuer(secret)
	if ttl > 0 {
		c.tokenTTL = ttl
	}
}

// SetAccountKey configures verification of tokens minted by the account system.
func (c *Core) SetAccountKey(secret string) {
	if secret == "" {
		c.accounts = nil
		return
	}
	c.accounts = token.NewIssuer(secret)
}

func (c *Core) SetMaxBody(n int) {
	if n > 0 {
		c.maxBody = n
	}
}

// SetPollInterval is the reconciliation interval handed to agent dashboards.
func (c *Core) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.poll = d
	}
}

// Init starts background maintenance; it stops when ctx is done.
func (c *Core) Init(ctx context.Context, staleAfter, sweepInterval time.Duration) {
	if staleAfter <= 0 || sweepInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		c.log.With(
			slog.Duration("stale_after", staleAfter),
			slog.Duration("interval", sweepInterval),
		).Info("stale conversation sweeper started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.SweepStale(ctx, staleAfter)
			}
		}
	}()
}

func (c *Core) broadcast(room, eventType string, payload interface{}) {
	if c.router == nil {
		return
	}
	c.router.Broadcast(room, eventType, payload)
}

// publish runs after the store write; a broker failure never fails the caller.
func (c *Core) publish(ctx context.Context, eventType string, data interface{}) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(context.WithoutCancel(ctx), eventType, events.NewEnvelope(eventType, data)); err != nil {
		c.log.With(
			slog.String("event", eventType),
			sl.Err(err),
		).Warn("publish lifecycle event")
	}
}
