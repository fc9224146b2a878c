// ABOUTME: Browser front end for threaded agent chat, routed with chi
// ABOUTME: The conversation cursor travels in the send form, so the server holds no session state

package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/agentchat/internal/conversation"
	"github.com/2389/agentchat/internal/dedupe"
	"github.com/2389/agentchat/internal/identity"
	"github.com/2389/agentchat/internal/store"
	"github.com/2389/agentchat/internal/warehouse"
)

// maxFormBytes bounds a posted prompt.
const maxFormBytes = 64 << 10

// AuditLister reads the call audit trail.
type AuditLister interface {
	ListAudit(ctx context.Context, f store.AuditFilter) ([]*store.AuditRecord, error)
}

// Options configures optional endpoints.
type Options struct {
	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string
	// SQL runs generated queries and shows their results when non-nil.
	SQL warehouse.Runner
}

// UI serves the chat pages.
type UI struct {
	svc      *conversation.Service
	audit    AuditLister
	identity identity.Provider
	opts     Options
	turns    *dedupe.Window // send-form tokens already used
	logger   *slog.Logger
}

// New creates a UI.
func New(svc *conversation.Service, audit AuditLister, id identity.Provider, opts Options, logger *slog.Logger) *UI {
	if logger == nil {
		logger = slog.Default()
	}
	return &UI{
		svc:      svc,
		audit:    audit,
		identity: id,
		opts:     opts,
		turns:    dedupe.New(dedupe.DefaultWindow, dedupe.DefaultCapacity),
		logger:   logger.With("component", "webui"),
	}
}

// Routes returns the HTTP handler for the UI.
func (u *UI) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(u.logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", u.handleHealth)
	if u.opts.MetricsPath != "" {
		r.Handle(u.opts.MetricsPath, promhttp.Handler())
	}

	r.Get("/", u.handleThreads)
	r.Post("/threads", u.handleNewThread)
	r.Get("/threads/{id}", u.handleThread)
	r.Post("/threads/{id}/messages", u.handleSend)
	r.Get("/threads/{id}/audit", u.handleAudit)

	return r
}

func (u *UI) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleThreads renders the thread picker
func (u *UI) handleThreads(w http.ResponseWriter, r *http.Request) {
	user, ok := u.currentUser(w, r)
	if !ok {
		return
	}
	u.renderThreads(w, r, http.StatusOK, user, "")
}

func (u *UI) renderThreads(w http.ResponseWriter, r *http.Request, status int, user, errMsg string) {
	threads, err := u.svc.ListThreads(r.Context(), user)
	if err != nil {
		u.logger.Error("failed to list threads", "error", err, "user", user)
		http.Error(w, "Failed to load threads", http.StatusInternalServerError)
		return
	}

	options := make([]threadOption, 0, len(threads))
	for _, t := range threads {
		options = append(options, threadOption{ID: t.ID, Title: displayTitle(t)})
	}
	u.render(w, status, "threads", threadsPageData{
		Title:   "Threads",
		User:    user,
		Threads: options,
		Error:   errMsg,
	})
}

// handleNewThread creates a thread and redirects to it
func (u *UI) handleNewThread(w http.ResponseWriter, r *http.Request) {
	user, ok := u.currentUser(w, r)
	if !ok {
		return
	}

	cur, err := u.svc.StartThread(r.Context(), user)
	if err != nil {
		if !conversation.IsRecoverable(err) {
			u.logger.Error("failed to start thread", "error", err)
			http.Error(w, "Failed to record thread", http.StatusInternalServerError)
			return
		}
		u.renderThreads(w, r, http.StatusBadGateway, user, fmt.Sprintf("Failed to create thread: %v", err))
		return
	}

	http.Redirect(w, r, "/threads/"+cur.ThreadID, http.StatusSeeOther)
}

// handleThread replays a thread and positions the send form after its last message
func (u *UI) handleThread(w http.ResponseWriter, r *http.Request) {
	user, ok := u.currentUser(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "id")
	if !u.ownedThread(w, r, user, threadID) {
		return
	}

	msgs, cur, err := u.svc.SwitchThread(r.Context(), threadID)
	if err != nil {
		u.threadError(w, err, threadID)
		return
	}

	u.render(w, http.StatusOK, "thread", threadPageData{
		Title:           "Thread " + threadID,
		User:            user,
		ThreadID:        threadID,
		ParentMessageID: cur.ParentMessageID,
		TurnToken:       uuid.NewString(),
		Messages:        u.messageViews(msgs),
	})
}

// handleSend runs one turn from the cursor carried in the form
func (u *UI) handleSend(w http.ResponseWriter, r *http.Request) {
	user, ok := u.currentUser(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	prompt := strings.TrimSpace(r.PostFormValue("prompt"))
	parent, err := strconv.ParseInt(r.PostFormValue("parent_message_id"), 10, 64)
	if err != nil || parent < 0 {
		http.Error(w, "Invalid parent_message_id", http.StatusBadRequest)
		return
	}

	if !u.ownedThread(w, r, user, threadID) {
		return
	}

	// A resubmitted form carries a token that was already claimed.
	token := r.PostFormValue("turn_token")
	tokenKey := threadID + ":" + token
	if token != "" && !u.turns.Claim(tokenKey) {
		u.logger.Info("dropping resubmitted turn", "thread_id", threadID)
		u.renderDuplicate(w, r, user, threadID)
		return
	}

	cur := conversation.Cursor{ThreadID: threadID, ParentMessageID: parent}
	outcome, next, sendErr := u.svc.Send(r.Context(), cur, prompt)
	if sendErr != nil {
		// let the same form be retried
		u.turns.Release(tokenKey)
	}
	if sendErr != nil && !conversation.IsRecoverable(sendErr) {
		u.logger.Error("turn failed", "error", sendErr, "thread_id", threadID)
		http.Error(w, "Failed to record message", http.StatusInternalServerError)
		return
	}

	msgs, _, err := u.svc.SwitchThread(r.Context(), threadID)
	if err != nil {
		u.threadError(w, err, threadID)
		return
	}

	data := threadPageData{
		Title:           "Thread " + threadID,
		User:            user,
		ThreadID:        threadID,
		ParentMessageID: next.ParentMessageID,
		TurnToken:       uuid.NewString(),
		Messages:        u.messageViews(msgs),
	}
	status := http.StatusOK
	switch {
	case errors.Is(sendErr, conversation.ErrInvalidArgument):
		status = http.StatusBadRequest
		data.Error = sendErr.Error()
	case sendErr != nil:
		status = http.StatusBadGateway
		data.Error = fmt.Sprintf("Agent call failed: %v", sendErr)
	default:
		if outcome.Text == "" {
			data.Notice = conversation.NoTextNotice
		}
		data.Query = outcome.Query
		if outcome.Query != "" && u.opts.SQL != nil {
			res, err := u.opts.SQL.Run(r.Context(), outcome.Query)
			if err != nil {
				u.logger.Warn("generated query failed", "error", err, "thread_id", threadID)
				data.QueryError = fmt.Sprintf("SQL run failed: %v", err)
			} else {
				data.QueryResult = res
			}
		}
	}
	u.render(w, status, "thread", data)
}

// renderDuplicate shows the thread as it stands without running a turn.
func (u *UI) renderDuplicate(w http.ResponseWriter, r *http.Request, user, threadID string) {
	msgs, cur, err := u.svc.SwitchThread(r.Context(), threadID)
	if err != nil {
		u.threadError(w, err, threadID)
		return
	}
	u.render(w, http.StatusConflict, "thread", threadPageData{
		Title:           "Thread " + threadID,
		User:            user,
		ThreadID:        threadID,
		ParentMessageID: cur.ParentMessageID,
		TurnToken:       uuid.NewString(),
		Messages:        u.messageViews(msgs),
		Error:           "This message was already sent.",
	})
}

type auditEntry struct {
	ID              string  `json:"audit_id"`
	StartedAt       string  `json:"start_ts"`
	EndedAt         string  `json:"end_ts"`
	DurationSeconds float64 `json:"duration_seconds"`
	ThreadID        string  `json:"thread_id,omitempty"`
	ParentMessageID int64   `json:"parent_message_id"`
	Prompt          string  `json:"prompt"`
	HTTPStatus      int     `json:"http_status"`
}

// handleAudit returns the thread's audit records as JSON, newest first
func (u *UI) handleAudit(w http.ResponseWriter, r *http.Request) {
	user, ok := u.currentUser(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "id")
	if !u.ownedThread(w, r, user, threadID) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recs, err := u.audit.ListAudit(r.Context(), store.AuditFilter{ThreadID: &threadID, Limit: limit})
	if err != nil {
		u.logger.Error("failed to list audit records", "error", err, "thread_id", threadID)
		http.Error(w, "Failed to load audit records", http.StatusInternalServerError)
		return
	}

	entries := make([]auditEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, auditEntry{
			ID:              rec.ID,
			StartedAt:       rec.StartedAt.UTC().Format(timeLayout),
			EndedAt:         rec.EndedAt.UTC().Format(timeLayout),
			DurationSeconds: rec.Duration().Seconds(),
			ThreadID:        rec.ThreadID,
			ParentMessageID: rec.ParentMessageID,
			Prompt:          rec.Prompt,
			HTTPStatus:      rec.HTTPStatus,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		u.logger.Error("failed to encode audit records", "error", err)
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func (u *UI) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := u.identity.CurrentUser(r.Context())
	if err != nil {
		u.logger.Error("failed to resolve current user", "error", err)
		http.Error(w, "Cannot determine current user", http.StatusInternalServerError)
		return "", false
	}
	return user, true
}

// ownedThread writes a 404 unless threadID exists and belongs to user.
// Another user's thread is reported exactly like a missing one.
func (u *UI) ownedThread(w http.ResponseWriter, r *http.Request, user, threadID string) bool {
	thread, err := u.svc.GetThread(r.Context(), threadID)
	if err != nil {
		u.threadError(w, err, threadID)
		return false
	}
	if thread.UserName != user {
		u.logger.Warn("refusing thread owned by another user", "thread_id", threadID, "user", user)
		http.Error(w, "Thread not found", http.StatusNotFound)
		return false
	}
	return true
}

func (u *UI) threadError(w http.ResponseWriter, err error, threadID string) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, conversation.ErrInvalidArgument) {
		http.Error(w, "Thread not found", http.StatusNotFound)
		return
	}
	u.logger.Error("failed to load thread", "error", err, "thread_id", threadID)
	http.Error(w, "Failed to load thread", http.StatusInternalServerError)
}
