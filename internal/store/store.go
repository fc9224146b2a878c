// ABOUTME: Store interface and data types for agentchat persistence
// ABOUTME: Defines Thread, Message and AuditRecord rows and the append-only Store contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateThread is returned when trying to create a thread that already exists
var ErrDuplicateThread = errors.New("thread already exists")

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Thread is a conversation context issued by the remote agent API and owned by one user.
type Thread struct {
	ID        string
	UserName  string
	CreatedAt time.Time
	Title     string // optional, stored as NULL when empty
}

// Message is one turn half within a thread. MessageID is the sequence identifier
// the remote agent uses to locate prior context; it is not unique across clients.
type Message struct {
	ThreadID  string
	MessageID int64
	Role      Role
	Content   string
	CreatedAt time.Time
}

// AuditRecord captures one remote call attempt. ThreadID is empty when a
// thread-creation call failed to yield an identifier.
type AuditRecord struct {
	ID              string // UUID v4, generated on insert when empty
	StartedAt       time.Time
	EndedAt         time.Time
	ThreadID        string
	ParentMessageID int64
	Prompt          string
	HTTPStatus      int
}

// Duration returns how long the audited call took.
func (a *AuditRecord) Duration() time.Duration {
	return a.EndedAt.Sub(a.StartedAt)
}

// AuditFilter narrows ListAudit results.
type AuditFilter struct {
	ThreadID *string // only calls made for this thread
	Limit    int     // max results (default 100, max 1000)
}

// Store is the append-only persistence contract used by the conversation layer.
// Implementations must use parameterized statements only.
type Store interface {
	// Threads
	InsertThread(ctx context.Context, thread *Thread) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	ListThreadsForUser(ctx context.Context, userName string) ([]*Thread, error)

	// Messages, ordered by message id then creation time
	InsertMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, threadID string) ([]*Message, error)

	// Audit trail of remote calls
	InsertAudit(ctx context.Context, rec *AuditRecord) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error)

	// Close releases any resources held by the store
	Close() error
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
