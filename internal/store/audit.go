// ABOUTME: API call audit trail for the SQLite store
// ABOUTME: Records timing, thread context, prompt and status of every remote agent call

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertAudit appends a record to the audit trail.
// Generates ID and StartedAt/EndedAt if not set.
func (s *SQLiteStore) InsertAudit(ctx context.Context, rec *AuditRecord) error {
	prepareAudit(rec)

	query := `
		INSERT INTO api_call_audit (audit_id, start_ts, end_ts, thread_id, parent_message_id, prompt, http_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		formatTime(rec.StartedAt),
		formatTime(rec.EndedAt),
		nullString(rec.ThreadID),
		rec.ParentMessageID,
		rec.Prompt,
		rec.HTTPStatus,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}

	s.logger.Debug("appended audit record",
		"id", rec.ID,
		"thread_id", rec.ThreadID,
		"parent_message_id", rec.ParentMessageID,
		"status", rec.HTTPStatus,
	)
	return nil
}

// prepareAudit fills generated fields shared by all store implementations.
func prepareAudit(rec *AuditRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = rec.StartedAt
	}
}

const auditQuery = `
	SELECT audit_id, start_ts, end_ts, COALESCE(thread_id, ''), parent_message_id, prompt, http_status
	FROM api_call_audit
	WHERE (? IS NULL OR thread_id = ?)
	ORDER BY start_ts DESC
	LIMIT ?
`

// ListAudit returns audit records matching the filter, newest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, f AuditFilter) ([]*AuditRecord, error) {
	limit := normalizeAuditLimit(f.Limit)

	rows, err := s.db.QueryContext(ctx, auditQuery, f.ThreadID, f.ThreadID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit trail: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []*AuditRecord{}
	for rows.Next() {
		var rec AuditRecord
		var startStr, endStr string

		if err := rows.Scan(
			&rec.ID,
			&startStr,
			&endStr,
			&rec.ThreadID,
			&rec.ParentMessageID,
			&rec.Prompt,
			&rec.HTTPStatus,
		); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}

		if rec.StartedAt, err = parseTime(startStr); err != nil {
			return nil, fmt.Errorf("parsing start_ts: %w", err)
		}
		if rec.EndedAt, err = parseTime(endStr); err != nil {
			return nil, fmt.Errorf("parsing end_ts: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}

	return records, nil
}
