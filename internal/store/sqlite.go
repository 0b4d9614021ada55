// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session and agent persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer at a time; WAL keeps readers unblocked
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Transcript rows cascade with their agent
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			user_id               TEXT PRIMARY KEY,
			state                 TEXT NOT NULL DEFAULT '',
			pending_agent_name    TEXT NOT NULL DEFAULT '',
			selected_agent_name   TEXT NOT NULL DEFAULT '',
			active_chat_agent     TEXT NOT NULL DEFAULT '',
			pending_image_path    TEXT NOT NULL DEFAULT '',
			pending_image_caption TEXT NOT NULL DEFAULT '',
			created_at            TEXT NOT NULL,
			updated_at            TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agents (
			id           TEXT PRIMARY KEY,
			owner        TEXT NOT NULL,
			name         TEXT NOT NULL,
			instructions TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,

			UNIQUE(owner, name),
			CHECK (name <> '')
		);

		CREATE INDEX IF NOT EXISTS idx_agents_owner ON agents(owner);

		CREATE TABLE IF NOT EXISTS agent_messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id   TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			user_text  TEXT NOT NULL,
			bot_text   TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agent_messages_agent ON agent_messages(agent_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping verifies the database connection is alive
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSession retrieves the session of a user.
// Returns ErrNotFound if the user has never interacted.
func (s *SQLiteStore) GetSession(ctx context.Context, userID string) (*Session, error) {
	query := `
		SELECT user_id, state, pending_agent_name, selected_agent_name, active_chat_agent,
		       pending_image_path, pending_image_caption, created_at, updated_at
		FROM sessions
		WHERE user_id = ?
	`

	var sess Session
	var state, createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&sess.UserID,
		&state,
		&sess.PendingAgentName,
		&sess.SelectedAgentName,
		&sess.ActiveChatAgentName,
		&sess.PendingImagePath,
		&sess.PendingImageCaption,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	sess.State = State(state)
	if sess.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &sess, nil
}

// SaveSession inserts or replaces the session row for session.UserID.
// CreatedAt is preserved on update; UpdatedAt is set to now.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *Session) error {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	query := `
		INSERT INTO sessions (user_id, state, pending_agent_name, selected_agent_name, active_chat_agent,
		                      pending_image_path, pending_image_caption, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			pending_agent_name = excluded.pending_agent_name,
			selected_agent_name = excluded.selected_agent_name,
			active_chat_agent = excluded.active_chat_agent,
			pending_image_path = excluded.pending_image_path,
			pending_image_caption = excluded.pending_image_caption,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		session.UserID,
		string(session.State),
		session.PendingAgentName,
		session.SelectedAgentName,
		session.ActiveChatAgentName,
		session.PendingImagePath,
		session.PendingImageCaption,
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	s.logger.Debug("saved session", "user_id", session.UserID, "state", session.State)
	return nil
}

// PutAgent creates an agent, or replaces the agent with the same owner and
// name. A replaced agent keeps its ID but gets the new instructions and an
// empty transcript. agent.ID and timestamps are filled in on return.
func (s *SQLiteStore) PutAgent(ctx context.Context, agent *Agent) (bool, error) {
	if agent.Name == "" {
		return false, ErrEmptyName
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	var existingID, createdAtStr string
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM agents WHERE owner = ? AND name = ?`,
		agent.Owner, agent.Name,
	).Scan(&existingID, &createdAtStr)

	replaced := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if agent.ID == "" {
			agent.ID = uuid.New().String()
		}
		agent.CreatedAt = now
		agent.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO agents (id, owner, name, instructions, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, agent.ID, agent.Owner, agent.Name, agent.Instructions, formatTime(now), formatTime(now))
		if err != nil {
			return false, fmt.Errorf("inserting agent: %w", err)
		}

	case err != nil:
		return false, fmt.Errorf("querying agent: %w", err)

	default:
		replaced = true
		agent.ID = existingID
		if agent.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return false, fmt.Errorf("parsing created_at: %w", err)
		}
		agent.UpdatedAt = now
		if _, err := tx.ExecContext(ctx,
			`UPDATE agents SET instructions = ?, updated_at = ? WHERE id = ?`,
			agent.Instructions, formatTime(now), existingID,
		); err != nil {
			return false, fmt.Errorf("replacing agent: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM agent_messages WHERE agent_id = ?`, existingID); err != nil {
			return false, fmt.Errorf("clearing transcript: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing agent: %w", err)
	}

	agent.Messages = nil
	s.logger.Debug("put agent", "id", agent.ID, "owner", agent.Owner, "name", agent.Name, "replaced", replaced)
	return replaced, nil
}

// GetAgent retrieves an agent of owner by ID, including its transcript.
// Returns ErrNotFound if it doesn't exist or belongs to another owner.
func (s *SQLiteStore) GetAgent(ctx context.Context, owner, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, name, instructions, created_at, updated_at
		FROM agents
		WHERE owner = ? AND id = ?
	`, owner, id)
	return s.loadAgent(ctx, row)
}

// GetAgentByName retrieves an agent of owner by name, including its transcript.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetAgentByName(ctx context.Context, owner, name string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, name, instructions, created_at, updated_at
		FROM agents
		WHERE owner = ? AND name = ?
	`, owner, name)
	return s.loadAgent(ctx, row)
}

// loadAgent scans an agent row and attaches its transcript.
func (s *SQLiteStore) loadAgent(ctx context.Context, row *sql.Row) (*Agent, error) {
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	agent.Messages, err = s.getTurns(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var agent Agent
	var createdAtStr, updatedAtStr string

	if err := row.Scan(
		&agent.ID,
		&agent.Owner,
		&agent.Name,
		&agent.Instructions,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning agent: %w", err)
	}

	var err error
	if agent.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if agent.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &agent, nil
}

// getTurns returns the transcript of an agent in insertion order.
func (s *SQLiteStore) getTurns(ctx context.Context, agentID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_text, bot_text, created_at
		FROM agent_messages
		WHERE agent_id = ?
		ORDER BY seq ASC
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var createdAtStr string
		if err := rows.Scan(&turn.User, &turn.Bot, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if turn.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing turn created_at: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript rows: %w", err)
	}
	return turns, nil
}

// ListAgents returns the agents of owner ordered by name.
// Transcripts are not loaded.
func (s *SQLiteStore) ListAgents(ctx context.Context, owner string) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, name, instructions, created_at, updated_at
		FROM agents
		WHERE owner = ?
		ORDER BY name ASC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

// UpdateInstructions overwrites the instructions of an agent, leaving the
// transcript untouched. Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) UpdateInstructions(ctx context.Context, owner, name, instructions string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agents SET instructions = ?, updated_at = ?
		WHERE owner = ? AND name = ?
	`, instructions, formatTime(time.Now().UTC()), owner, name)
	if err != nil {
		return fmt.Errorf("updating instructions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated instructions", "owner", owner, "name", name)
	return nil
}

// DeleteAgent removes an agent and its transcript.
// Deleting a missing agent is not an error; the bool reports whether a row went away.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, owner, name string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE owner = ? AND name = ?`, owner, name)
	if err != nil {
		return false, fmt.Errorf("deleting agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("deleted agent", "owner", owner, "name", name, "existed", rowsAffected > 0)
	return rowsAffected > 0, nil
}

// AppendTurn appends one exchange to an agent transcript.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) AppendTurn(ctx context.Context, agentID string, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_messages (agent_id, user_text, bot_text, created_at)
		VALUES (?, ?, ?, ?)
	`, agentID, turn.User, turn.Bot, formatTime(turn.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("appending turn: %w", err)
	}

	s.logger.Debug("appended turn", "agent_id", agentID)
	return nil
}

// isConstraintViolation checks if the error is a SQLite constraint failure
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "FOREIGN KEY constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
