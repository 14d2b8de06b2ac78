package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ollmchat/config"
	"ollmchat/model"
)

// ErrSessionNotFound is returned by Load and Delete for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is a saved conversation.
type Session struct {
	ID           string
	Name         string
	Model        string
	SystemPrompt string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Messages     []model.Message
}

// SessionMetadata is a Session without its messages, for listing.
type SessionMetadata struct {
	ID           string
	Name         string
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// storedCall is the JSON form of a tool call in the messages table.
type storedCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// History persists conversations in <data>/history.db.
type History struct {
	db *sql.DB
}

func Open(dataDir string) (*History, error) {
	if err := config.EnsureDir(dataDir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "history.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	h := &History{db: db}
	if err := h.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[storage] history at %s", dbPath)
	}
	return h, nil
}

func (h *History) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		system_prompt TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		thinking TEXT NOT NULL DEFAULT '',
		tool_calls TEXT NOT NULL DEFAULT '',
		tool_call_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Save inserts or updates s and replaces its messages. A missing ID is
// filled with a new uuid.
func (h *History) Save(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.UpdatedAt = time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.UpdatedAt
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO sessions (id, name, model, system_prompt, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		model = excluded.model,
		system_prompt = excluded.system_prompt,
		updated_at = excluded.updated_at
	`, s.ID, s.Name, s.Model, s.SystemPrompt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, s.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO messages (session_id, seq, role, content, thinking, tool_calls, tool_call_id, name, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range s.Messages {
		calls, err := encodeCalls(m.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to encode tool calls: %w", err)
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = s.UpdatedAt
		}
		_, err = stmt.ExecContext(ctx, s.ID, i, string(m.Role()), m.Content, m.Thinking, calls, m.ToolCallID, m.Name, ts.UTC())
		if err != nil {
			return fmt.Errorf("failed to save message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func (h *History) Load(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	err := h.db.QueryRowContext(ctx, `
	SELECT id, name, model, system_prompt, created_at, updated_at
	FROM sessions
	WHERE id = ?
	`, id).Scan(&s.ID, &s.Name, &s.Model, &s.SystemPrompt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	rows, err := h.db.QueryContext(ctx, `
	SELECT role, content, thinking, tool_calls, tool_call_id, name, created_at
	FROM messages
	WHERE session_id = ?
	ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role, calls string
		var m model.Message
		if err := rows.Scan(&role, &m.Content, &m.Thinking, &calls, &m.ToolCallID, &m.Name, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.SetRole(model.Role(role))
		if m.ToolCalls, err = decodeCalls(calls); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[storage] session %s: dropping unreadable tool calls: %v", id, err)
			}
		}
		s.Messages = append(s.Messages, m)
	}
	return s, rows.Err()
}

// List returns all sessions, most recently updated first.
func (h *History) List(ctx context.Context) ([]SessionMetadata, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT s.id, s.name, s.model, s.created_at, s.updated_at, COUNT(m.seq)
	FROM sessions s
	LEFT JOIN messages m ON m.session_id = s.id
	GROUP BY s.id
	ORDER BY s.updated_at DESC, s.rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionMetadata
	for rows.Next() {
		var md SessionMetadata
		if err := rows.Scan(&md.ID, &md.Name, &md.Model, &md.CreatedAt, &md.UpdatedAt, &md.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, md)
	}
	return out, rows.Err()
}

func (h *History) Delete(ctx context.Context, id string) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return tx.Commit()
}

func (h *History) Close() error {
	return h.db.Close()
}

func encodeCalls(calls []model.ToolCall) (string, error) {
	if len(calls) == 0 {
		return "", nil
	}
	stored := make([]storedCall, len(calls))
	for i, c := range calls {
		stored[i] = storedCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeCalls(data string) ([]model.ToolCall, error) {
	if data == "" {
		return nil, nil
	}
	var stored []storedCall
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, err
	}
	calls := make([]model.ToolCall, len(stored))
	for i, c := range stored {
		calls[i] = model.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}
	return calls, nil
}
