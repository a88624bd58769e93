// Package client talks to the chat service the way the widget and the agent
// dashboard do: a typed REST client, a self-healing socket session and the
// reconciliation helpers that keep local state in line with the server.
package client

import (
	"LiveChat/entity"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// codeErrors maps envelope codes back to the domain errors.
var codeErrors = map[string]error{
	"validation":          entity.ErrValidation,
	"unauthorized":        entity.ErrUnauthorized,
	"forbidden":           entity.ErrForbidden,
	"not_found":           entity.ErrNotFound,
	"conflict":            entity.ErrConflict,
	"already_exists":      entity.ErrAlreadyExists,
	"conversation_closed": entity.ErrConversationClosed,
	"rate_limited":        entity.ErrRateLimited,
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// StatusError is returned for failures without a known envelope code.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s %s", e.Status, e.Code, e.Message)
}

// Identity selects how requests authenticate. Exactly one field is used,
// in the order agent token, account token, visitor session.
type Identity struct {
	AgentToken     string
	AccountToken   string
	VisitorSession string
}

type API struct {
	base     *url.URL
	http     *http.Client
	identity Identity
}

func NewAPI(baseURL string, identity Identity) (*API, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &API{
		base:     base,
		http:     &http.Client{Timeout: 15 * time.Second},
		identity: identity,
	}, nil
}

func (a *API) Identity() Identity {
	return a.identity
}

// IsAgent reports whether requests are made with an agent token.
func (a *API) IsAgent() bool {
	return a.identity.AgentToken != ""
}

// SocketURL is the WebSocket endpoint with the identity in the query.
func (a *API) SocketURL() string {
	u := *a.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	q := url.Values{}
	switch {
	case a.identity.AgentToken != "":
		q.Set("token", a.identity.AgentToken)
	case a.identity.AccountToken != "":
		q.Set("account_token", a.identity.AccountToken)
	case a.identity.VisitorSession != "":
		q.Set("session", a.identity.VisitorSession)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := *a.base
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1" + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case a.identity.AgentToken != "":
		req.Header.Set("Authorization", "Bearer "+a.identity.AgentToken)
	case a.identity.AccountToken != "":
		req.Header.Set("Authorization", "Bearer "+a.identity.AccountToken)
	case a.identity.VisitorSession != "":
		req.Header.Set("X-Visitor-Session", a.identity.VisitorSession)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err = json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode == http.StatusUnauthorized {
			return entity.ErrUnauthorized
		}
		return &StatusError{Status: resp.StatusCode, Message: err.Error()}
	}

	if !env.Success {
		if known, ok := codeErrors[env.Code]; ok {
			return fmt.Errorf("%w: %s", known, env.Message)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", entity.ErrUnauthorized, env.Message)
		}
		return &StatusError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (a *API) Health(ctx context.Context) error {
	u := *a.base
	u.Path = strings.TrimRight(u.Path, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}

// Visitor and account operations.

func (a *API) Start(ctx context.Context, req entity.StartRequest) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := a.do(ctx, http.MethodPost, "/chat/start", nil, req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (a *API) VisitorHistory(ctx context.Context, id string) ([]entity.Message, error) {
	var messages []entity.Message
	err := a.do(ctx, http.MethodGet, "/chat/"+url.PathEscape(id)+"/messages", nil, nil, &messages)
	return messages, err
}

func (a *API) PostVisitorMessage(ctx context.Context, id, body, clientID string) (*entity.Message, error) {
	var msg entity.Message
	req := entity.PostMessageRequest{Body: body, ClientID: clientID}
	if err := a.do(ctx, http.MethodPost, "/chat/"+url.PathEscape(id)+"/messages", nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Agent operations.

// Login authenticates and switches this client to the returned agent token.
func (a *API) Login(ctx context.Context, username, password string) (*entity.AgentSession, error) {
	var session entity.AgentSession
	req := entity.LoginRequest{Username: username, Password: password}
	if err := a.do(ctx, http.MethodPost, "/agent/login", nil, req, &session); err != nil {
		return nil, err
	}
	a.identity = Identity{AgentToken: session.Token}
	return &session, nil
}

func (a *API) Me(ctx context.Context) (*entity.Agent, error) {
	var agent entity.Agent
	if err := a.do(ctx, http.MethodGet, "/agent/me", nil, nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (a *API) AgentConversations(ctx context.Context, status entity.ConversationStatus) ([]entity.Conversation, error) {
	var query url.Values
	if status != "" {
		query = url.Values{"status": {string(status)}}
	}
	var list []entity.Conversation
	err := a.do(ctx, http.MethodGet, "/agent/conversations", query, nil, &list)
	return list, err
}

func (a *API) Claim(ctx context.Context, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := a.do(ctx, http.MethodPost, "/agent/conversations/"+url.PathEscape(id)+"/claim", nil, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (a *API) Close(ctx context.Context, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := a.do(ctx, http.MethodPost, "/agent/conversations/"+url.PathEscape(id)+"/close", nil, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (a *API) AgentHistory(ctx context.Context, id string) ([]entity.Message, error) {
	var messages []entity.Message
	err := a.do(ctx, http.MethodGet, "/agent/conversations/"+url.PathEscape(id)+"/messages", nil, nil, &messages)
	return messages, err
}

func (a *API) PostAgentMessage(ctx context.Context, id, body, clientID string) (*entity.Message, error) {
	var msg entity.Message
	req := entity.PostMessageRequest{Body: body, ClientID: clientID}
	if err := a.do(ctx, http.MethodPost, "/agent/conversations/"+url.PathEscape(id)+"/messages", nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// History and Post pick the agent or visitor route from the identity.

func (a *API) History(ctx context.Context, id string) ([]entity.Message, error) {
	if a.IsAgent() {
		return a.AgentHistory(ctx, id)
	}
	return a.VisitorHistory(ctx, id)
}

func (a *API) Post(ctx context.Context, id, body, clientID string) (*entity.Message, error) {
	if a.IsAgent() {
		return a.PostAgentMessage(ctx, id, body, clientID)
	}
	return a.PostVisitorMessage(ctx, id, body, clientID)
}

// Admin operations.

func (a *API) CreateAgent(ctx context.Context, req entity.AgentCreateRequest) (*entity.Agent, error) {
	var agent entity.Agent
	if err := a.do(ctx, http.MethodPost, "/admin/agents", nil, req, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (a *API) ListAgents(ctx context.Context) ([]entity.Agent, error) {
	var agents []entity.Agent
	err := a.do(ctx, http.MethodGet, "/admin/agents", nil, nil, &agents)
	return agents, err
}

func (a *API) GetAgent(ctx context.Context, id string) (*entity.Agent, error) {
	var agent entity.Agent
	if err := a.do(ctx, http.MethodGet, "/admin/agents/"+url.PathEscape(id), nil, nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (a *API) UpdateAgent(ctx context.Context, id string, req entity.AgentUpdateRequest) (*entity.Agent, error) {
	var agent entity.Agent
	if err := a.do(ctx, http.MethodPut, "/admin/agents/"+url.PathEscape(id), nil, req, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (a *API) DisableAgent(ctx context.Context, id string) (*entity.Agent, error) {
	var agent entity.Agent
	if err := a.do(ctx, http.MethodPost, "/admin/agents/"+url.PathEscape(id)+"/disable", nil, nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (a *API) DeleteAgent(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/admin/agents/"+url.PathEscape(id), nil, nil, nil)
}

func (a *API) ListConversations(ctx context.Context, filter entity.ConversationFilter) (*entity.ConversationPage, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.AgentID != "" {
		query.Set("agent_id", filter.AgentID)
	}
	if filter.Page > 0 {
		query.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	var page entity.ConversationPage
	if err := a.do(ctx, http.MethodGet, "/admin/conversations", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (a *API) ConversationDetail(ctx context.Context, id string) (*entity.ConversationDetail, error) {
	var detail entity.ConversationDetail
	if err := a.do(ctx, http.MethodGet, "/admin/conversations/"+url.PathEscape(id), nil, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}
