package core

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/sl"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Login checks credentials and issues an agent session token.
func (c *Core) Login(ctx context.Context, username, password string) (*entity.AgentSession, error) {
	if c.agentKeys == nil {
		return nil, fmt.Errorf("auth key not set")
	}
	agent, err := c.repo.GetAgentByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, entity.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid username or password", entity.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if err = bcrypt.CompareHashAndPassword([]byte(agent.PasswordHash), []byte(password)); err != nil {
		c.log.With(slog.String("username", agent.Username)).Warn("login rejected")
		return nil, fmt.Errorf("%w: invalid username or password", entity.ErrUnauthorized)
	}
	if !agent.IsActive {
		return nil, entity.ErrAgentDisabled
	}

	signed, expires, err := c.agentKeys.Generate(agent.ID, string(agent.Role), c.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	agent.IsOnline = c.isOnline(agent.ID)

	c.log.With(
		slog.String("username", agent.Username),
		sl.Secret("token", signed),
	).Info("agent logged in")
	return &entity.AgentSession{
		Token:       signed,
		ExpiresAt:   expires,
		PollSeconds: int(c.poll / time.Second),
		Agent:       agent,
	}, nil
}

// AuthenticateAgent resolves a session token to an active agent. Disabled or
// deleted agents are unauthorized even with an unexpired token.
func (c *Core) AuthenticateAgent(ctx context.Context, tokenString string) (*entity.Agent, error) {
	if c.agentKeys == nil {
		return nil, fmt.Errorf("auth key not set")
	}
	claims, err := c.agentKeys.Verify(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrUnauthorized, err)
	}
	agent, err := c.repo.GetAgent(ctx, claims.Subject)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, fmt.Errorf("%w: agent no longer exists", entity.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !agent.IsActive {
		return nil, fmt.Errorf("%w: %w", entity.ErrUnauthorized, entity.ErrAgentDisabled)
	}
	return agent, nil
}

// AuthenticateAccount resolves a token issued by the account system to a party.
func (c *Core) AuthenticateAccount(tokenString string) (entity.Party, error) {
	if c.accounts == nil {
		return entity.Party{}, fmt.Errorf("%w: account tokens are not accepted", entity.ErrUnauthorized)
	}
	claims, err := c.accounts.Verify(tokenString)
	if err != nil {
		return entity.Party{}, fmt.Errorf("%w: %w", entity.ErrUnauthorized, err)
	}
	return entity.NewAccountParty(entity.AccountParty{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
	}), nil
}

func (c *Core) isOnline(agentID string) bool {
	return c.router != nil && c.router.IsOnline(agentID)
}

// Me returns the agent with its live presence.
func (c *Core) Me(agent *entity.Agent) *entity.Agent {
	me := *agent
	me.IsOnline = c.isOnline(agent.ID)
	return &me
}

func (c *Core) ListAgents(ctx context.Context) ([]entity.Agent, error) {
	agents, err := c.repo.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		agents[i].IsOnline = c.isOnline(agents[i].ID)
	}
	return agents, nil
}

func (c *Core) GetAgent(ctx context.Context, id string) (*entity.Agent, error) {
	agent, err := c.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	agent.IsOnline = c.isOnline(agent.ID)
	return agent, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}
	return string(hash), nil
}

func (c *Core) CreateAgent(ctx context.Context, req *entity.AgentCreateRequest) (*entity.Agent, error) {
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = entity.RoleAgent
	}

	now := c.now()
	agent := &entity.Agent{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = c.repo.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}

	c.log.With(
		slog.String("username", agent.Username),
		slog.String("role", string(agent.Role)),
	).Info("agent created")
	return agent, nil
}

// UpdateAgent applies the set fields of req. An admin cannot demote or
// deactivate itself.
func (c *Core) UpdateAgent(ctx context.Context, actor *entity.Agent, id string, req *entity.AgentUpdateRequest) (*entity.Agent, error) {
	agent, err := c.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID == id {
		if req.IsActive != nil && !*req.IsActive {
			return nil, fmt.Errorf("%w: cannot deactivate yourself", entity.ErrForbidden)
		}
		if req.Role != nil && *req.Role != agent.Role {
			return nil, fmt.Errorf("%w: cannot change your own role", entity.ErrForbidden)
		}
	}

	if req.Password != nil {
		if agent.PasswordHash, err = hashPassword(*req.Password); err != nil {
			return nil, err
		}
	}
	if req.DisplayName != nil {
		agent.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Role != nil {
		agent.Role = *req.Role
	}
	if req.IsActive != nil {
		agent.IsActive = *req.IsActive
	}
	agent.UpdatedAt = c.now()

	if err = c.repo.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}
	agent.IsOnline = c.isOnline(agent.ID)
	return agent, nil
}

func (c *Core) DisableAgent(ctx context.Context, actor *entity.Agent, id string) (*entity.Agent, error) {
	inactive := false
	return c.UpdateAgent(ctx, actor, id, &entity.AgentUpdateRequest{IsActive: &inactive})
}

func (c *Core) DeleteAgent(ctx context.Context, actor *entity.Agent, id string) error {
	if actor.ID == id {
		return fmt.Errorf("%w: cannot delete yourself", entity.ErrForbidden)
	}
	if err := c.repo.DeleteAgent(ctx, id); err != nil {
		return err
	}
	c.log.With(slog.String("agent", id)).Info("agent deleted")
	return nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
func (c *Core) EnsureAdmin(ctx context.Context, username, password, name string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := c.repo.GetAgentByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, entity.ErrNotFound) {
		return err
	}
	_, err = c.CreateAgent(ctx, &entity.AgentCreateRequest{
		Username:    username,
		Password:    password,
		DisplayName: name,
		Role:        entity.RoleAdmin,
	})
	if errors.Is(err, entity.ErrAlreadyExists) {
		return nil
	}
	return err
}
