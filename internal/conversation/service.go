// ABOUTME: Service drives whole turns: thread start/switch, message persistence and cursor advance
// ABOUTME: The user message is recorded before the agent call; the assistant message only after a successful one

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/agentchat/internal/agentapi"
	"github.com/2389/agentchat/internal/store"
)

// NoTextNotice is shown when a turn succeeds without any text.
const NoTextNotice = "No text returned."

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	AuditSink
	MessageLister

	InsertThread(ctx context.Context, thread *store.Thread) error
	GetThread(ctx context.Context, id string) (*store.Thread, error)
	ListThreadsForUser(ctx context.Context, userName string) ([]*store.Thread, error)
	InsertMessage(ctx context.Context, msg *store.Message) error
}

// Service is the conversation layer used by the REPL and the web UI.
type Service struct {
	store      ConversationStore
	reconciler *Reconciler
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Service whose reconciler audits into st.
func New(st ConversationStore, caller agentapi.Caller, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		reconciler: NewReconciler(caller, st, cfg, logger),
		logger:     logger.With("component", "conversation"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Reconciler exposes the underlying reconciler.
func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

// TurnOutcome is what a completed (or partially completed) Send produced.
type TurnOutcome struct {
	UserMessage      *store.Message
	AssistantMessage *store.Message // nil unless the turn succeeded
	Text             string
	Query            string
}

// DisplayText is the assistant text, or NoTextNotice when it is empty.
func (o *TurnOutcome) DisplayText() string {
	if o.Text == "" {
		return NoTextNotice
	}
	return o.Text
}

// ListThreads returns the user's threads, newest first.
func (s *Service) ListThreads(ctx context.Context, user string) ([]*store.Thread, error) {
	threads, err := s.store.ListThreadsForUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("listing threads for %s: %w", user, err)
	}
	return threads, nil
}

// GetThread returns a recorded thread; store.ErrNotFound passes through.
func (s *Service) GetThread(ctx context.Context, threadID string) (*store.Thread, error) {
	return s.store.GetThread(ctx, threadID)
}

// StartThread creates a remote thread, records it for user, and returns a
// cursor at its start.
func (s *Service) StartThread(ctx context.Context, user string) (Cursor, error) {
	threadID, err := s.reconciler.CreateThread(ctx)
	if err != nil {
		return Cursor{}, err
	}

	thread := &store.Thread{
		ID:        threadID,
		UserName:  user,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertThread(ctx, thread); err != nil {
		return Cursor{}, fmt.Errorf("recording thread %s: %w", threadID, err)
	}

	s.logger.Info("thread started", "thread_id", threadID, "user", user)
	return NewCursor(threadID), nil
}

// SwitchThread replays an existing thread and positions a cursor after its
// last message.
func (s *Service) SwitchThread(ctx context.Context, threadID string) ([]*store.Message, Cursor, error) {
	if _, err := s.store.GetThread(ctx, threadID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Cursor{}, fmt.Errorf("%w: thread %s not found", ErrInvalidArgument, threadID)
		}
		return nil, Cursor{}, fmt.Errorf("loading thread %s: %w", threadID, err)
	}

	msgs, cur, err := RestoreCursor(ctx, s.store, threadID)
	if err != nil {
		return nil, Cursor{}, err
	}
	s.logger.Debug("switched thread",
		"thread_id", threadID,
		"messages", len(msgs),
		"parent_message_id", cur.ParentMessageID)
	return msgs, cur, nil
}

// Send runs one turn from cur. On success the returned cursor sits on the
// assistant message. On failure it is cur unchanged; the user message may
// already be recorded and is reported in the outcome.
func (s *Service) Send(ctx context.Context, cur Cursor, prompt string) (*TurnOutcome, Cursor, error) {
	if !cur.Active() {
		return nil, cur, ErrNoThread
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, cur, fmt.Errorf("%w: prompt is empty", ErrInvalidArgument)
	}

	// Record first, then act.
	userID := AssignProvisionalUserMessageID(cur.ParentMessageID)
	userMsg := &store.Message{
		ThreadID:  cur.ThreadID,
		MessageID: userID,
		Role:      store.RoleUser,
		Content:   prompt,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertMessage(ctx, userMsg); err != nil {
		return nil, cur, fmt.Errorf("recording user message: %w", err)
	}
	outcome := &TurnOutcome{UserMessage: userMsg}

	pending := cur.begin()
	s.logger.Debug("user message recorded",
		"thread_id", pending.ThreadID,
		"message_id", userID,
		"state", pending.State)

	result, err := s.reconciler.RunTurn(ctx, prompt, cur.ThreadID, cur.ParentMessageID)
	if err != nil {
		return outcome, cur, err
	}
	outcome.Text = result.Text
	outcome.Query = result.Query

	finalID := ResolveFinalAssistantMessageID(result.AssistantMessageID, userID)
	if finalID <= userID {
		s.logger.Warn("agent message id does not advance the thread, using next local id",
			"thread_id", cur.ThreadID,
			"returned_id", result.AssistantMessageID,
			"user_message_id", userID)
		finalID = userID + 1
	}

	assistantMsg := &store.Message{
		ThreadID:  cur.ThreadID,
		MessageID: finalID,
		Role:      store.RoleAssistant,
		Content:   result.Text,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertMessage(ctx, assistantMsg); err != nil {
		return outcome, cur, fmt.Errorf("recording assistant message: %w", err)
	}
	outcome.AssistantMessage = assistantMsg

	return outcome, pending.advance(finalID), nil
}
