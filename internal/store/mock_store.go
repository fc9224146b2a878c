// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	threads  map[string]*Thread    // keyed by thread ID
	messages map[string][]*Message // keyed by thread ID, insertion order
	audit    []*AuditRecord

	// InsertErr, when set, is returned by every Insert* call without storing anything.
	InsertErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		threads:  make(map[string]*Thread),
		messages: make(map[string][]*Message),
	}
}

// InsertThread stores a new thread.
func (m *MockStore) InsertThread(ctx context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertErr != nil {
		return m.InsertErr
	}
	if _, ok := m.threads[thread.ID]; ok {
		return ErrDuplicateThread
	}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}

	// Make a copy to avoid external modification
	t := *thread
	m.threads[t.ID] = &t
	return nil
}

// GetThread retrieves a thread by ID.
func (m *MockStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *t
	return &result, nil
}

// ListThreadsForUser returns the user's threads, newest first.
func (m *MockStore) ListThreadsForUser(ctx context.Context, userName string) ([]*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	threads := []*Thread{}
	for _, t := range m.threads {
		if t.UserName != userName {
			continue
		}
		threadCopy := *t
		threads = append(threads, &threadCopy)
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].CreatedAt.After(threads[j].CreatedAt)
	})
	return threads, nil
}

// InsertMessage stores a message.
func (m *MockStore) InsertMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertErr != nil {
		return m.InsertErr
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msgCopy := *msg
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], &msgCopy)
	return nil
}

// ListMessages returns copies of a thread's messages ordered by id, then creation time.
func (m *MockStore) ListMessages(ctx context.Context, threadID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[threadID]
	result := make([]*Message, len(msgs))
	for i, msg := range msgs {
		msgCopy := *msg
		result[i] = &msgCopy
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].MessageID != result[j].MessageID {
			return result[i].MessageID < result[j].MessageID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// InsertAudit stores an audit record.
func (m *MockStore) InsertAudit(ctx context.Context, rec *AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertErr != nil {
		return m.InsertErr
	}
	prepareAudit(rec)
	recCopy := *rec
	m.audit = append(m.audit, &recCopy)
	return nil
}

// ListAudit returns matching audit records, newest first.
func (m *MockStore) ListAudit(ctx context.Context, f AuditFilter) ([]*AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := []*AuditRecord{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		rec := m.audit[i]
		if f.ThreadID != nil && rec.ThreadID != *f.ThreadID {
			continue
		}
		recCopy := *rec
		records = append(records, &recCopy)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit := normalizeAuditLimit(f.Limit); len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// AuditRecords returns every stored audit record in insertion order.
func (m *MockStore) AuditRecords() []*AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*AuditRecord, len(m.audit))
	for i, rec := range m.audit {
		recCopy := *rec
		result[i] = &recCopy
	}
	return result
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
