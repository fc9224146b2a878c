// ABOUTME: Tests for RestoreCursor and cursor transitions
// ABOUTME: Uses MockStore for history and a real SQLite store for tie ordering

package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentchat/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRestoreCursor_MaxIDAndOrder(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMockStore()
	base := time.Now().UTC()

	// inserted out of order on purpose
	require.NoError(t, ms.InsertMessage(ctx, &store.Message{ThreadID: "t1", MessageID: 4, Role: store.RoleUser, Content: "c", CreatedAt: base.Add(2 * time.Second)}))
	require.NoError(t, ms.InsertMessage(ctx, &store.Message{ThreadID: "t1", MessageID: 1, Role: store.RoleUser, Content: "a", CreatedAt: base}))
	require.NoError(t, ms.InsertMessage(ctx, &store.Message{ThreadID: "t1", MessageID: 2, Role: store.RoleAssistant, Content: "b", CreatedAt: base.Add(time.Second)}))

	msgs, cur, err := RestoreCursor(ctx, ms, "t1")
	require.NoError(t, err)

	assert.Equal(t, int64(4), cur.ParentMessageID)
	assert.Equal(t, "t1", cur.ThreadID)
	assert.Equal(t, StateFresh, cur.State)
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{1, 2, 4}, []int64{msgs[0].MessageID, msgs[1].MessageID, msgs[2].MessageID})
	assert.Equal(t, []store.Role{store.RoleUser, store.RoleAssistant, store.RoleUser}, []store.Role{msgs[0].Role, msgs[1].Role, msgs[2].Role})
}

func TestRestoreCursor_EmptyThread(t *testing.T) {
	msgs, cur, err := RestoreCursor(context.Background(), store.NewMockStore(), "empty")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, int64(0), cur.ParentMessageID)
	assert.True(t, cur.Active())
}

func TestRestoreCursor_RequiresThreadID(t *testing.T) {
	_, _, err := RestoreCursor(context.Background(), store.NewMockStore(), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRestoreCursor_TiesOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	base := time.Now().UTC()

	require.NoError(t, s.InsertMessage(ctx, &store.Message{ThreadID: "t", MessageID: 1, Role: store.RoleUser, Content: "retry", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.InsertMessage(ctx, &store.Message{ThreadID: "t", MessageID: 1, Role: store.RoleUser, Content: "first", CreatedAt: base}))

	msgs, cur, err := RestoreCursor(ctx, s, "t")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "retry", msgs[1].Content)
	assert.Equal(t, int64(1), cur.ParentMessageID)
}

func TestCursor_Transitions(t *testing.T) {
	var zero Cursor
	assert.False(t, zero.Active())

	cur := NewCursor("t")
	pending := cur.begin()
	assert.Equal(t, StateAwaitingResponse, pending.State)
	assert.Equal(t, StateFresh, cur.State, "begin must not mutate the original")

	next := pending.advance(9)
	assert.Equal(t, StateFresh, next.State)
	assert.Equal(t, int64(9), next.ParentMessageID)
	assert.Equal(t, "awaiting_response", StateAwaitingResponse.String())
}
