package repository

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/sl"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps conversations, messages and agents in a single SQLite file.
// All writes go through one connection, so conditional updates are serialized.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:  db,
		log: logger.With(sl.Module("sqlite")),
	}

	if err = s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.log.Info("sqlite store initialized", slog.String("path", path))
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			party_key TEXT NOT NULL,
			party TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			agent_id TEXT,
			agent_name TEXT,
			last_message TEXT NOT NULL DEFAULT '',
			last_message_at INTEGER,
			closed_by TEXT NOT NULL DEFAULT '',
			closed_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_open_party
			ON conversations(party_key) WHERE status != 'closed';

		CREATE INDEX IF NOT EXISTS idx_conversations_status_updated
			ON conversations(status, updated_at);

		CREATE INDEX IF NOT EXISTS idx_conversations_agent
			ON conversations(agent_id, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_type TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			agent_name TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			client_id TEXT NOT NULL DEFAULT '',
			read INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at, id);

		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const conversationColumns = `id, party, subject, status, agent_id, agent_name, last_message,
	last_message_at, closed_by, closed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*entity.Conversation, error) {
	var (
		c                  entity.Conversation
		party              string
		status             string
		agentID, agentName sql.NullString
		lastAt, closedAt   sql.NullInt64
		createdAt, updated int64
	)
	err := row.Scan(&c.ID, &party, &c.Subject, &status, &agentID, &agentName, &c.LastMessage,
		&lastAt, &c.ClosedBy, &closedAt, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(party), &c.Party); err != nil {
		return nil, fmt.Errorf("decode party: %w", err)
	}
	c.PartyKey = c.Party.Key()
	c.Status = entity.ConversationStatus(status)
	if agentID.Valid && agentID.String != "" {
		c.Agent = &entity.AgentRef{ID: agentID.String, Name: agentName.String}
	}
	c.LastMessageAt = fromNullNanos(lastAt)
	c.ClosedAt = fromNullNanos(closedAt)
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updated)
	return &c, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func getConversation(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string) (*entity.Conversation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get conversation: %w", err)
	}
	return c, nil
}

// StartConversation returns the open conversation for conv's party, inserting
// conv when there is none. The boolean is true when conv was inserted.
func (s *SQLiteStore) StartConversation(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	party, err := json.Marshal(conv.Party)
	if err != nil {
		return nil, false, fmt.Errorf("encode party: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE party_key = ? AND status != 'closed'`, conv.PartyKey)
	existing, err := scanConversation(row)
	if err == nil {
		return existing, false, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("sqlite find open conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO conversations
		(id, party_key, party, subject, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.PartyKey, string(party), conv.Subject, string(conv.Status),
		conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano())
	if err != nil {
		return nil, false, fmt.Errorf("sqlite insert conversation: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	return getConversation(ctx, s.db, id)
}

func (s *SQLiteStore) ListConversations(ctx context.Context, filter entity.ConversationFilter) (*entity.ConversationPage, error) {
	filter.Normalize()

	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	page := &entity.ConversationPage{Page: filter.Page, Limit: filter.Limit, Items: []entity.Conversation{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`+clause, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("sqlite count conversations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+conversationColumns+` FROM conversations`+clause+
		` ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`, append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("sqlite list conversations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan conversation: %w", err)
		}
		page.Items = append(page.Items, *c)
	}
	return page, rows.Err()
}

// ClaimConversation moves a waiting conversation to active with agent set in
// the same statement. Losing claimants get entity.ErrConflict.
func (s *SQLiteStore) ClaimConversation(ctx context.Context, id string, agent *entity.AgentRef, now time.Time) (*entity.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE conversations
		SET status = 'active', agent_id = ?, agent_name = ?, updated_at = ?
		WHERE id = ? AND status = 'waiting'`,
		agent.ID, agent.Name, now.UnixNano(), id)
	if err != nil {
		return nil, fmt.Errorf("sqlite claim conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	conv, err := getConversation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return conv, fmt.Errorf("conversation %s is %s: %w", id, conv.Status, entity.ErrConflict)
	}
	return conv, tx.Commit()
}

// CloseConversation closes an open conversation. Closing a closed one returns
// it unchanged with changed=false.
func (s *SQLiteStore) CloseConversation(ctx context.Context, id, closedBy string, now time.Time) (*entity.Conversation, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE conversations
		SET status = 'closed', closed_by = ?, closed_at = ?, updated_at = ?
		WHERE id = ? AND status != 'closed'`,
		closedBy, now.UnixNano(), now.UnixNano(), id)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite close conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	conv, err := getConversation(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	return conv, affected == 1, tx.Commit()
}

// CloseConversationAs closes a conversation that is waiting or assigned to
// agentID. An active conversation of another agent is left untouched and
// yields entity.ErrForbidden.
func (s *SQLiteStore) CloseConversationAs(ctx context.Context, id, agentID string, now time.Time) (*entity.Conversation, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE conversations
		SET status = 'closed', closed_by = ?, closed_at = ?, updated_at = ?
		WHERE id = ? AND (status = 'waiting' OR (status = 'active' AND agent_id = ?))`,
		agentID, now.UnixNano(), now.UnixNano(), id, agentID)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite close conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	conv, err := getConversation(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	if affected == 0 && conv.Status != entity.StatusClosed {
		return nil, false, fmt.Errorf("conversation %s is assigned to another agent: %w", id, entity.ErrForbidden)
	}
	return conv, affected == 1, tx.Commit()
}

func (s *SQLiteStore) ListStaleConversations(ctx context.Context, before time.Time, limit int) ([]entity.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE status != 'closed' AND updated_at < ? AND COALESCE(last_message_at, 0) < ?
		ORDER BY updated_at LIMIT ?`,
		before.UnixNano(), before.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite list stale conversations: %w", err)
	}
	defer rows.Close()

	var result []entity.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// AppendMessage inserts msg only if its conversation is open and refreshes
// the conversation summary in the same transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *entity.Message) (*entity.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	conv, err := getConversation(ctx, tx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsClosed() {
		return conv, fmt.Errorf("conversation %s: %w", conv.ID, entity.ErrConversationClosed)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO messages
		(id, conversation_id, sender_type, agent_id, agent_name, body, client_id, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		msg.ID, msg.ConversationID, string(msg.SenderType), msg.AgentID, msg.AgentName,
		msg.Body, msg.ClientID, msg.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message = ?, last_message_at = ? WHERE id = ?`,
		msg.Body, msg.CreatedAt.UnixNano(), msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite update summary: %w", err)
	}

	conv.LastMessage = msg.Body
	at := msg.CreatedAt
	conv.LastMessageAt = &at
	return conv, tx.Commit()
}

func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]entity.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, conversation_id, sender_type, agent_id, agent_name,
		body, client_id, read, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite find messages: %w", err)
	}
	defer rows.Close()

	messages := []entity.Message{}
	for rows.Next() {
		var (
			m          entity.Message
			senderType string
			read       int
			createdAt  int64
		)
		if err = rows.Scan(&m.ID, &m.ConversationID, &senderType, &m.AgentID, &m.AgentName,
			&m.Body, &m.ClientID, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite scan message: %w", err)
		}
		m.SenderType = entity.SenderType(senderType)
		m.Read = read == 1
		m.CreatedAt = fromNanos(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkRead flags messages written by sender as read.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID string, sender entity.SenderType) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET read = 1
		WHERE conversation_id = ? AND sender_type = ? AND read = 0`, conversationID, string(sender))
	if err != nil {
		return fmt.Errorf("sqlite mark read: %w", err)
	}
	return nil
}

const agentColumns = `id, username, password_hash, display_name, role, is_active, created_at, updated_at`

func scanAgent(row rowScanner) (*entity.Agent, error) {
	var (
		a                  entity.Agent
		role               string
		active             int
		createdAt, updated int64
	)
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.DisplayName, &role, &active, &createdAt, &updated); err != nil {
		return nil, err
	}
	a.Role = entity.AgentRole(role)
	a.IsActive = active == 1
	a.CreatedAt = fromNanos(createdAt)
	a.UpdatedAt = fromNanos(updated)
	return &a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *entity.Agent) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Username, agent.PasswordHash, agent.DisplayName, string(agent.Role),
		boolInt(agent.IsActive), agent.CreatedAt.UnixNano(), agent.UpdatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("agent %s: %w", agent.Username, entity.ErrAlreadyExists)
		}
		return fmt.Errorf("sqlite insert agent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getAgent(ctx context.Context, where string, arg string) (*entity.Agent, error) {
	a, err := scanAgent(s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE `+where+` = ?`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", arg, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get agent: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*entity.Agent, error) {
	return s.getAgent(ctx, "id", id)
}

func (s *SQLiteStore) GetAgentByUsername(ctx context.Context, username string) (*entity.Agent, error) {
	return s.getAgent(ctx, "username", username)
}

func (s *SQLiteStore) ListAgents(ctx context.Context) ([]entity.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list agents: %w", err)
	}
	defer rows.Close()

	agents := []entity.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *entity.Agent) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents
		SET password_hash = ?, display_name = ?, role = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		agent.PasswordHash, agent.DisplayName, string(agent.Role), boolInt(agent.IsActive),
		agent.UpdatedAt.UnixNano(), agent.ID)
	if err != nil {
		return fmt.Errorf("sqlite update agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %s: %w", agent.ID, entity.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite delete agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %s: %w", id, entity.ErrNotFound)
	}
	return nil
}
