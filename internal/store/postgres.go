// ABOUTME: PostgreSQL implementation of the Store interface using a pgx connection pool
// ABOUTME: Mirrors the SQLite schema with native timestamps and resolves CURRENT_USER for identity

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface on PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to databaseURL, verifies the connection and creates the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store", "driver", "postgres")

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("postgres store initialized")
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS agent_threads (
			thread_id  TEXT PRIMARY KEY,
			user_name  TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			title      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_agent_threads_user_created
			ON agent_threads(user_name, created_at DESC);

		CREATE TABLE IF NOT EXISTS agent_messages (
			thread_id  TEXT NOT NULL,
			message_id BIGINT NOT NULL CHECK (message_id >= 0),
			role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agent_messages_thread_order
			ON agent_messages(thread_id, message_id, created_at);

		CREATE TABLE IF NOT EXISTS api_call_audit (
			audit_id          UUID PRIMARY KEY,
			start_ts          TIMESTAMPTZ NOT NULL,
			end_ts            TIMESTAMPTZ NOT NULL,
			thread_id         TEXT,
			parent_message_id BIGINT NOT NULL,
			prompt            TEXT NOT NULL,
			http_status       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_api_call_audit_start ON api_call_audit(start_ts DESC);
		CREATE INDEX IF NOT EXISTS idx_api_call_audit_thread ON api_call_audit(thread_id);
	`)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing postgres store")
	s.pool.Close()
	return nil
}

// CurrentUser returns the database session user, the way a warehouse session identifies its caller.
func (s *PostgresStore) CurrentUser(ctx context.Context) (string, error) {
	var user string
	if err := s.pool.QueryRow(ctx, `SELECT current_user`).Scan(&user); err != nil {
		return "", fmt.Errorf("querying current user: %w", err)
	}
	return user, nil
}

// InsertThread records a newly created thread.
func (s *PostgresStore) InsertThread(ctx context.Context, thread *Thread) error {
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_threads (thread_id, user_name, created_at, title)
		VALUES ($1, $2, $3, $4)
	`, thread.ID, thread.UserName, thread.CreatedAt.UTC(), nullString(thread.Title))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateThread
		}
		return fmt.Errorf("inserting thread: %w", err)
	}

	s.logger.Debug("inserted thread", "thread_id", thread.ID, "user", thread.UserName)
	return nil
}

// GetThread retrieves a thread by ID.
func (s *PostgresStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	var thread Thread
	err := s.pool.QueryRow(ctx, `
		SELECT thread_id, user_name, created_at, COALESCE(title, '')
		FROM agent_threads
		WHERE thread_id = $1
	`, id).Scan(&thread.ID, &thread.UserName, &thread.CreatedAt, &thread.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	return &thread, nil
}

// ListThreadsForUser returns every thread owned by userName, newest first.
func (s *PostgresStore) ListThreadsForUser(ctx context.Context, userName string) ([]*Thread, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT thread_id, user_name, created_at, COALESCE(title, '')
		FROM agent_threads
		WHERE user_name = $1
		ORDER BY created_at DESC
	`, userName)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	threads := []*Thread{}
	for rows.Next() {
		var thread Thread
		if err := rows.Scan(&thread.ID, &thread.UserName, &thread.CreatedAt, &thread.Title); err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}
		threads = append(threads, &thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread rows: %w", err)
	}
	return threads, nil
}

// InsertMessage appends a message to a thread's history.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("invalid message role %q", msg.Role)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_messages (thread_id, message_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ThreadID, msg.MessageID, string(msg.Role), msg.Content, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("inserted message", "thread_id", msg.ThreadID, "message_id", msg.MessageID, "role", msg.Role)
	return nil
}

// ListMessages returns every message of a thread ordered by message id, then creation time.
func (s *PostgresStore) ListMessages(ctx context.Context, threadID string) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT thread_id, message_id, role, content, created_at
		FROM agent_messages
		WHERE thread_id = $1
		ORDER BY message_id ASC, created_at ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		var msg Message
		var role string
		if err := rows.Scan(&msg.ThreadID, &msg.MessageID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.Role = Role(role)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// InsertAudit appends a record to the audit trail.
func (s *PostgresStore) InsertAudit(ctx context.Context, rec *AuditRecord) error {
	prepareAudit(rec)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_call_audit (audit_id, start_ts, end_ts, thread_id, parent_message_id, prompt, http_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.StartedAt.UTC(), rec.EndedAt.UTC(), nullString(rec.ThreadID), rec.ParentMessageID, rec.Prompt, rec.HTTPStatus)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// ListAudit returns audit records matching the filter, newest first.
func (s *PostgresStore) ListAudit(ctx context.Context, f AuditFilter) ([]*AuditRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT audit_id::text, start_ts, end_ts, COALESCE(thread_id, ''), parent_message_id, prompt, http_status
		FROM api_call_audit
		WHERE ($1::text IS NULL OR thread_id = $1)
		ORDER BY start_ts DESC
		LIMIT $2
	`, f.ThreadID, normalizeAuditLimit(f.Limit))
	if err != nil {
		return nil, fmt.Errorf("querying audit trail: %w", err)
	}
	defer rows.Close()

	records := []*AuditRecord{}
	for rows.Next() {
		var rec AuditRecord
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &rec.ThreadID, &rec.ParentMessageID, &rec.Prompt, &rec.HTTPStatus); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}
	return records, nil
}
