// ABOUTME: Reconciler issues thread-creation and run calls and folds the event stream into a turn result
// ABOUTME: Every remote call writes exactly one audit record, whatever its outcome

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/agentchat/internal/agentapi"
	"github.com/2389/agentchat/internal/store"
)

// CreateThreadPrompt is the audit prompt recorded for thread-creation calls.
const CreateThreadPrompt = "CREATE_THREAD"

// Defaults for Config fields left empty.
const (
	DefaultModel     = "claude-3-5-sonnet"
	DefaultUserAgent = "agentchat/1.0"
)

// Config is the static shape of every remote call.
type Config struct {
	Model      string
	UserAgent  string
	Timeout    time.Duration
	ThreadPath string
	RunPath    string
	Tools      agentapi.ToolBindings
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = agentapi.DefaultTimeout
	}
	if c.ThreadPath == "" {
		c.ThreadPath = agentapi.DefaultThreadPath
	}
	if c.RunPath == "" {
		c.RunPath = agentapi.DefaultRunPath
	}
	return c
}

// AuditSink receives one record per remote call.
type AuditSink interface {
	InsertAudit(ctx context.Context, rec *store.AuditRecord) error
}

// TurnResult is the folded outcome of one run call.
type TurnResult struct {
	Text  string
	Query string
	// AssistantMessageID is the last message id named by the stream, verbatim.
	// It is the parent id in decimal when no event carried one.
	AssistantMessageID string
}

// Reconciler holds no conversation state; the cursor is supplied on every call.
type Reconciler struct {
	caller agentapi.Caller
	audit  AuditSink
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(caller agentapi.Caller, audit AuditSink, cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		caller: caller,
		audit:  audit,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "reconciler"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateThread asks the agent API for a new thread id. Failures are not retried.
func (r *Reconciler) CreateThread(ctx context.Context) (string, error) {
	start := r.now()
	resp, callErr := r.caller.Call(ctx, &agentapi.Request{
		Method:  http.MethodPost,
		Path:    r.cfg.ThreadPath,
		Headers: r.headers(),
		Body:    map[string]any{},
		Timeout: r.cfg.Timeout,
	})
	end := r.now()

	status := agentapi.StatusTransportError
	var threadID string
	var parseErr error
	if callErr == nil {
		status = resp.Status
		threadID, parseErr = agentapi.ParseThreadID(resp.Body)
	}

	if err := r.record(ctx, start, end, threadID, 0, CreateThreadPrompt, status); err != nil {
		return "", err
	}

	switch {
	case callErr != nil:
		r.logger.Warn("thread creation failed", "error", callErr)
		return "", fmt.Errorf("%w: creating thread: %w", ErrGatewayFailure, callErr)
	case status != http.StatusOK:
		r.logger.Warn("thread creation rejected", "status", status)
		return "", fmt.Errorf("%w: %w", ErrGatewayFailure, statusError(r.cfg.ThreadPath, resp))
	case parseErr != nil:
		return "", fmt.Errorf("%w: %w", ErrMalformedResponse, parseErr)
	case threadID == "":
		return "", fmt.Errorf("%w: thread response carried no thread_id", ErrMalformedResponse)
	}

	r.logger.Info("thread created", "thread_id", threadID)
	return threadID, nil
}

// RunTurn sends one user prompt in the context of threadID/parent and folds
// the response. On any failure the result carries empty text and query and
// the unchanged parent id.
func (r *Reconciler) RunTurn(ctx context.Context, prompt, threadID string, parent int64) (TurnResult, error) {
	unchanged := TurnResult{AssistantMessageID: strconv.FormatInt(parent, 10)}

	switch {
	case strings.TrimSpace(prompt) == "":
		return unchanged, fmt.Errorf("%w: prompt is empty", ErrInvalidArgument)
	case threadID == "":
		return unchanged, fmt.Errorf("%w: thread id is required", ErrInvalidArgument)
	case parent < 0:
		return unchanged, fmt.Errorf("%w: parent message id %d is negative", ErrInvalidArgument, parent)
	}

	start := r.now()
	resp, callErr := r.caller.Call(ctx, &agentapi.Request{
		Method:  http.MethodPost,
		Path:    r.cfg.RunPath,
		Headers: r.headers(),
		Body:    agentapi.NewRunRequest(r.cfg.Model, threadID, parent, prompt, r.cfg.Tools),
		Timeout: r.cfg.Timeout,
	})
	end := r.now()

	status := agentapi.StatusTransportError
	if callErr == nil {
		status = resp.Status
	}
	if err := r.record(ctx, start, end, threadID, parent, prompt, status); err != nil {
		return unchanged, err
	}

	if callErr != nil {
		r.logger.Warn("agent run failed", "thread_id", threadID, "error", callErr)
		return unchanged, fmt.Errorf("%w: running turn: %w", ErrGatewayFailure, callErr)
	}
	if status != http.StatusOK {
		r.logger.Warn("agent run rejected", "thread_id", threadID, "status", status)
		return unchanged, fmt.Errorf("%w: %w", ErrGatewayFailure, statusError(r.cfg.RunPath, resp))
	}

	events, err := agentapi.DecodeEvents(resp.Body)
	if err != nil {
		r.logger.Warn("agent response unparseable", "thread_id", threadID, "error", err)
		return unchanged, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	result := Fold(events, parent)
	r.logger.Debug("turn reconciled",
		"thread_id", threadID,
		"parent_message_id", parent,
		"events", len(events),
		"assistant_message_id", result.AssistantMessageID,
		"has_query", result.Query != "")
	return result, nil
}

// Fold aggregates decoded events. Text and tool-result text append in event
// order; a present sql key always replaces the query; the last message id
// named by a marker event wins. Unknown events are ignored.
func Fold(events []agentapi.Event, parent int64) TurnResult {
	var text strings.Builder
	result := TurnResult{AssistantMessageID: strconv.FormatInt(parent, 10)}

	for _, ev := range events {
		switch e := ev.(type) {
		case agentapi.MessageDelta:
			for _, item := range e.Content {
				switch item.Type {
				case agentapi.ContentTypeText:
					text.WriteString(item.Text)
				case agentapi.ContentTypeToolResults:
					for _, res := range item.ToolResults {
						if res.JSON == nil {
							continue
						}
						text.WriteString(res.JSON.Text)
						if res.JSON.SQL != nil {
							result.Query = *res.JSON.SQL
						}
					}
				}
			}
		case agentapi.MessageMarker:
			if e.HasMessageID {
				result.AssistantMessageID = e.MessageID
			}
		}
	}

	result.Text = text.String()
	return result
}

func (r *Reconciler) headers() map[string]string {
	return map[string]string{"User-Agent": r.cfg.UserAgent}
}

// record writes the audit row. It survives cancellation of ctx so that
// timed-out calls are still audited.
func (r *Reconciler) record(ctx context.Context, start, end time.Time, threadID string, parent int64, prompt string, status int) error {
	rec := &store.AuditRecord{
		StartedAt:       start,
		EndedAt:         end,
		ThreadID:        threadID,
		ParentMessageID: parent,
		Prompt:          prompt,
		HTTPStatus:      status,
	}
	if err := r.audit.InsertAudit(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("recording audit: %w", err)
	}
	return nil
}

func statusError(path string, resp *agentapi.Response) *agentapi.StatusError {
	body := string(resp.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return &agentapi.StatusError{Path: path, Status: resp.Status, Body: body}
}
