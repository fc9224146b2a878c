// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite or mattn/go-sqlite3
// ABOUTME: Provides thread/message/audit persistence with automatic schema creation

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

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by NewSQLiteStoreWithDriver.
const (
	DriverModernc = "sqlite"  // pure Go, default
	DriverCGO     = "sqlite3" // mattn/go-sqlite3, requires cgo
)

// timeLayout is fixed width so that lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure Go driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver(DriverModernc, path)
}

// NewSQLiteStoreWithDriver creates a SQLite store using the named database/sql driver.
func NewSQLiteStoreWithDriver(driver, path string) (*SQLiteStore, error) {
	if driver != DriverModernc && driver != DriverCGO {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}
	logger := slog.Default().With("component", "store", "driver", driver)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every new connection to :memory: would get its own empty database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
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

// createSchema creates the database tables if they don't exist.
// Messages carry no uniqueness constraint: independent clients racing on one
// thread may legitimately produce the same message id.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agent_threads (
			thread_id  TEXT PRIMARY KEY,
			user_name  TEXT NOT NULL,
			created_at TEXT NOT NULL,
			title      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_agent_threads_user_created
			ON agent_threads(user_name, created_at DESC);

		CREATE TABLE IF NOT EXISTS agent_messages (
			thread_id  TEXT NOT NULL,
			message_id INTEGER NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant')),
			CHECK (message_id >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_agent_messages_thread_order
			ON agent_messages(thread_id, message_id, created_at);

		CREATE TABLE IF NOT EXISTS api_call_audit (
			audit_id          TEXT PRIMARY KEY,
			start_ts          TEXT NOT NULL,
			end_ts            TEXT NOT NULL,
			thread_id         TEXT,
			parent_message_id INTEGER NOT NULL,
			prompt            TEXT NOT NULL,
			http_status       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_api_call_audit_start ON api_call_audit(start_ts DESC);
		CREATE INDEX IF NOT EXISTS idx_api_call_audit_thread ON api_call_audit(thread_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// InsertThread records a newly created thread.
// Returns ErrDuplicateThread if the thread id is already stored.
func (s *SQLiteStore) InsertThread(ctx context.Context, thread *Thread) error {
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO agent_threads (thread_id, user_name, created_at, title)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		thread.ID,
		thread.UserName,
		formatTime(thread.CreatedAt),
		nullString(thread.Title),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateThread
		}
		return fmt.Errorf("inserting thread: %w", err)
	}

	s.logger.Debug("inserted thread", "thread_id", thread.ID, "user", thread.UserName)
	return nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetThread retrieves a thread by ID.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	query := `
		SELECT thread_id, user_name, created_at, COALESCE(title, '')
		FROM agent_threads
		WHERE thread_id = ?
	`

	thread, err := scanThread(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	return thread, nil
}

// ListThreadsForUser returns every thread owned by userName, newest first.
func (s *SQLiteStore) ListThreadsForUser(ctx context.Context, userName string) ([]*Thread, error) {
	query := `
		SELECT thread_id, user_name, created_at, COALESCE(title, '')
		FROM agent_threads
		WHERE user_name = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userName)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	threads := []*Thread{}
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}
		threads = append(threads, thread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread rows: %w", err)
	}

	return threads, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*Thread, error) {
	var thread Thread
	var createdAtStr string

	if err := row.Scan(&thread.ID, &thread.UserName, &createdAtStr, &thread.Title); err != nil {
		return nil, err
	}

	createdAt, err := parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	thread.CreatedAt = createdAt
	return &thread, nil
}

// InsertMessage appends a message to a thread's history.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("invalid message role %q", msg.Role)
	}
	if msg.MessageID < 0 {
		return fmt.Errorf("invalid message id %d", msg.MessageID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO agent_messages (thread_id, message_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ThreadID,
		msg.MessageID,
		string(msg.Role),
		msg.Content,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("inserted message", "thread_id", msg.ThreadID, "message_id", msg.MessageID, "role", msg.Role)
	return nil
}

// ListMessages returns every message of a thread ordered by message id, then creation time.
func (s *SQLiteStore) ListMessages(ctx context.Context, threadID string) ([]*Message, error) {
	query := `
		SELECT thread_id, message_id, role, content, created_at
		FROM agent_messages
		WHERE thread_id = ?
		ORDER BY message_id ASC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		var msg Message
		var role, createdAtStr string

		if err := rows.Scan(&msg.ThreadID, &msg.MessageID, &role, &msg.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.Role = Role(role)
		msg.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}
