// ABOUTME: Conversation cursor: the thread and parent message id the next turn continues from
// ABOUTME: A plain value owned by the caller, passed into each turn and returned updated

package conversation

import (
	"context"
	"fmt"

	"github.com/2389/agentchat/internal/store"
)

// CursorState is the position of a cursor in the turn cycle.
type CursorState int

const (
	// StateFresh means the cursor is ready for the next turn.
	StateFresh CursorState = iota
	// StateAwaitingResponse means a user message was persisted and the agent has not answered yet.
	StateAwaitingResponse
)

func (s CursorState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return fmt.Sprintf("CursorState(%d)", int(s))
	}
}

// Cursor identifies where the next turn attaches. The zero value has no thread.
type Cursor struct {
	ThreadID        string
	ParentMessageID int64
	State           CursorState
}

// NewCursor returns a fresh cursor at the start of threadID.
func NewCursor(threadID string) Cursor {
	return Cursor{ThreadID: threadID}
}

// Active reports whether the cursor points at a thread.
func (c Cursor) Active() bool {
	return c.ThreadID != ""
}

// begin marks a user message as sent.
func (c Cursor) begin() Cursor {
	c.State = StateAwaitingResponse
	return c
}

// advance moves the cursor onto a reconciled assistant message.
func (c Cursor) advance(assistantID int64) Cursor {
	c.ParentMessageID = assistantID
	c.State = StateFresh
	return c
}

// MessageLister is the read side RestoreCursor needs.
type MessageLister interface {
	ListMessages(ctx context.Context, threadID string) ([]*store.Message, error)
}

// RestoreCursor loads a thread's history in id order and positions a cursor
// after its highest message id, or at 0 for an empty thread.
func RestoreCursor(ctx context.Context, messages MessageLister, threadID string) ([]*store.Message, Cursor, error) {
	if threadID == "" {
		return nil, Cursor{}, fmt.Errorf("%w: thread id is required", ErrInvalidArgument)
	}

	msgs, err := messages.ListMessages(ctx, threadID)
	if err != nil {
		return nil, Cursor{}, fmt.Errorf("loading messages for thread %s: %w", threadID, err)
	}

	cur := NewCursor(threadID)
	for _, m := range msgs {
		if m.MessageID > cur.ParentMessageID {
			cur.ParentMessageID = m.MessageID
		}
	}
	return msgs, cur, nil
}
