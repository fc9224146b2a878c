// ABOUTME: Tests for Reconciler thread creation, run turns and event folding
// ABOUTME: Every call is checked for exactly one audit record with the right context

package conversation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentchat/internal/agentapi"
	"github.com/2389/agentchat/internal/store"
)

func newTestReconciler(caller agentapi.Caller, audit AuditSink) *Reconciler {
	return NewReconciler(caller, audit, Config{
		Model:     "test-model",
		UserAgent: "agentchat-test/1.0",
		Timeout:   5 * time.Second,
		Tools: agentapi.ToolBindings{
			SemanticModelFile: "@db.schema.stage/model.yaml",
			SearchService:     "db.schema.manuals",
			MaxResults:        10,
		},
	}, nil)
}

func TestCreateThread_Success(t *testing.T) {
	ms := store.NewMockStore()
	caller := newFakeCaller(replyOK(`{"thread_id":"th-123"}`))
	r := newTestReconciler(caller, ms)

	id, err := r.CreateThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "th-123", id)

	req := caller.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, agentapi.DefaultThreadPath, req.Path)
	assert.Equal(t, "agentchat-test/1.0", req.Headers["User-Agent"])
	assert.Equal(t, map[string]any{}, req.Body)
	assert.Equal(t, 5*time.Second, req.Timeout)

	recs := ms.AuditRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, CreateThreadPrompt, recs[0].Prompt)
	assert.Equal(t, int64(0), recs[0].ParentMessageID)
	assert.Equal(t, "th-123", recs[0].ThreadID)
	assert.Equal(t, 200, recs[0].HTTPStatus)
	assert.False(t, recs[0].EndedAt.Before(recs[0].StartedAt))
}

func TestCreateThread_NumericThreadID(t *testing.T) {
	r := newTestReconciler(newFakeCaller(replyOK(`{"thread_id":9001}`)), store.NewMockStore())
	id, err := r.CreateThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9001", id)
}

func TestCreateThread_AlwaysOneAuditRecord(t *testing.T) {
	tests := []struct {
		name       string
		reply      fakeReply
		wantErr    error
		wantStatus int
	}{
		{"non-200", replyStatus(503), ErrGatewayFailure, 503},
		{"transport error", replyErr(errors.New("connection refused")), ErrGatewayFailure, agentapi.StatusTransportError},
		{"timeout", replyErr(context.DeadlineExceeded), ErrGatewayFailure, agentapi.StatusTransportError},
		{"missing thread id", replyOK(`{}`), ErrMalformedResponse, 200},
		{"empty thread id", replyOK(`{"thread_id":""}`), ErrMalformedResponse, 200},
		{"empty body", replyOK(``), ErrMalformedResponse, 200},
		{"not json", replyOK(`<html>`), ErrMalformedResponse, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := store.NewMockStore()
			r := newTestReconciler(newFakeCaller(tt.reply), ms)

			id, err := r.CreateThread(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, id)

			recs := ms.AuditRecords()
			require.Len(t, recs, 1)
			assert.Equal(t, tt.wantStatus, recs[0].HTTPStatus)
			assert.Equal(t, CreateThreadPrompt, recs[0].Prompt)
			assert.Empty(t, recs[0].ThreadID)
		})
	}
}

func TestCreateThread_StatusErrorIsInspectable(t *testing.T) {
	r := newTestReconciler(newFakeCaller(replyStatus(401)), store.NewMockStore())
	_, err := r.CreateThread(context.Background())

	var se *agentapi.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 401, se.Status)
	assert.Equal(t, agentapi.DefaultThreadPath, se.Path)
}

func TestCreateThread_AuditFailurePropagates(t *testing.T) {
	ms := store.NewMockStore()
	ms.InsertErr = errors.New("warehouse unavailable")
	r := newTestReconciler(newFakeCaller(replyOK(`{"thread_id":"t"}`)), ms)

	_, err := r.CreateThread(context.Background())
	assert.ErrorIs(t, err, ms.InsertErr)
	assert.False(t, IsRecoverable(err))
}

func TestRunTurn_HelloStream(t *testing.T) {
	ms := store.NewMockStore()
	caller := newFakeCaller(replyOK(helloStream))
	r := newTestReconciler(caller, ms)

	res, err := r.RunTurn(context.Background(), "say hello", "th-1", 3)
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	assert.Empty(t, res.Query)
	assert.Equal(t, "42", res.AssistantMessageID)

	recs := ms.AuditRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, "th-1", recs[0].ThreadID)
	assert.Equal(t, int64(3), recs[0].ParentMessageID)
	assert.Equal(t, "say hello", recs[0].Prompt)
	assert.Equal(t, 200, recs[0].HTTPStatus)
}

func TestRunTurn_RequestBody(t *testing.T) {
	caller := newFakeCaller(replyOK(`[]`))
	r := newTestReconciler(caller, store.NewMockStore())

	_, err := r.RunTurn(context.Background(), "q", "th-1", 7)
	require.NoError(t, err)

	req := caller.lastRequest()
	assert.Equal(t, agentapi.DefaultRunPath, req.Path)
	body, ok := req.Body.(*agentapi.RunRequest)
	require.True(t, ok)
	assert.Equal(t, "test-model", body.Model)
	assert.Equal(t, "th-1", body.ThreadID)
	assert.Equal(t, int64(7), body.ParentMessageID)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Equal(t, "q", body.Messages[0].Content[0].Text)
	require.Len(t, body.Tools, 2)
	assert.Equal(t, agentapi.ToolTypeAnalyst, body.Tools[0].ToolSpec.Type)
	assert.Equal(t, agentapi.ToolTypeSearch, body.Tools[1].ToolSpec.Type)
	assert.Equal(t, 10, body.ToolResources["search1"].MaxResults)
}

func TestRunTurn_FailuresLeaveParentUnchanged(t *testing.T) {
	tests := []struct {
		name       string
		reply      fakeReply
		wantErr    error
		wantStatus int
	}{
		{"server error", replyStatus(500), ErrGatewayFailure, 500},
		{"bad request", replyStatus(400), ErrGatewayFailure, 400},
		{"transport", replyErr(errors.New("reset by peer")), ErrGatewayFailure, agentapi.StatusTransportError},
		{"timeout", replyErr(context.DeadlineExceeded), ErrGatewayFailure, agentapi.StatusTransportError},
		{"unparseable", replyOK(`[{"event":`), ErrMalformedResponse, 200},
		{"object body", replyOK(`{"event":"message.delta"}`), ErrMalformedResponse, 200},
		{"non-object element", replyOK(`[1,"x",null,{"event":"message.completed","data":{"message_id":"7"}}]`), ErrMalformedResponse, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := store.NewMockStore()
			r := newTestReconciler(newFakeCaller(tt.reply), ms)

			res, err := r.RunTurn(context.Background(), "hi", "th", 5)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsRecoverable(err))
			assert.Equal(t, TurnResult{AssistantMessageID: "5"}, res)

			recs := ms.AuditRecords()
			require.Len(t, recs, 1)
			assert.Equal(t, tt.wantStatus, recs[0].HTTPStatus)
			assert.Equal(t, "hi", recs[0].Prompt)
		})
	}
}

func TestRunTurn_RepeatedFailuresAreIdempotent(t *testing.T) {
	ms := store.NewMockStore()
	r := newTestReconciler(newFakeCaller(replyStatus(502), replyStatus(502), replyStatus(502)), ms)

	parent := int64(11)
	for i := 0; i < 3; i++ {
		res, err := r.RunTurn(context.Background(), "again", "th", parent)
		require.Error(t, err)
		assert.Equal(t, "11", res.AssistantMessageID)
	}
	assert.Len(t, ms.AuditRecords(), 3)
}

func TestRunTurn_InvalidArgumentsMakeNoCall(t *testing.T) {
	ms := store.NewMockStore()
	caller := newFakeCaller()
	r := newTestReconciler(caller, ms)

	_, err := r.RunTurn(context.Background(), "   ", "th", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = r.RunTurn(context.Background(), "hi", "", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = r.RunTurn(context.Background(), "hi", "th", -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Nil(t, caller.lastRequest())
	assert.Empty(t, ms.AuditRecords())
}

func TestRunTurn_AuditSurvivesCancelledContext(t *testing.T) {
	ms := store.NewMockStore()
	r := newTestReconciler(newFakeCaller(replyErr(context.Canceled)), ms)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RunTurn(ctx, "hi", "th", 0)
	assert.ErrorIs(t, err, ErrGatewayFailure)
	assert.Len(t, ms.AuditRecords(), 1)
}

func TestRunTurn_SSEBody(t *testing.T) {
	body := "event: message.delta\n" +
		`data: {"delta":{"content":[{"type":"text","text":"streamed"}]}}` + "\n\n" +
		"event: response.completed\n" +
		`data: {"message_id":"8"}` + "\n\n"
	r := newTestReconciler(newFakeCaller(replyOK(body)), store.NewMockStore())

	res, err := r.RunTurn(context.Background(), "hi", "th", 1)
	require.NoError(t, err)
	assert.Equal(t, "streamed", res.Text)
	assert.Equal(t, "8", res.AssistantMessageID)
}

func TestFold_ToolResults(t *testing.T) {
	events, err := agentapi.DecodeEvents([]byte(`[
		{"event":"message.delta","data":{"delta":{"content":[
			{"type":"text","text":"Answer: "},
			{"type":"tool_results","tool_results":{"content":[{"type":"json","json":{"text":"X","sql":"SELECT 1"}}]}}
		]}}}
	]`))
	require.NoError(t, err)

	res := Fold(events, 0)
	assert.Equal(t, "Answer: X", res.Text)
	assert.Equal(t, "SELECT 1", res.Query)
	assert.Equal(t, "0", res.AssistantMessageID)
}

func TestFold_QueryLastWriteWinsLiterally(t *testing.T) {
	first := `{"event":"message.delta","data":{"delta":{"content":[{"type":"tool_results","tool_results":{"content":[{"type":"json","json":{"text":"a","sql":"SELECT 1"}}]}}]}}}`

	tests := []struct {
		name      string
		second    string
		wantQuery string
	}{
		{"absent key keeps query", `{"type":"json","json":{"text":"b"}}`, "SELECT 1"},
		{"empty string overwrites", `{"type":"json","json":{"text":"b","sql":""}}`, ""},
		{"null overwrites", `{"type":"json","json":{"text":"b","sql":null}}`, ""},
		{"new query overwrites", `{"type":"json","json":{"text":"b","sql":"SELECT 2"}}`, "SELECT 2"},
		{"non-json result ignored", `{"type":"text","text":"zzz"}`, "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			second := `{"event":"message.delta","data":{"delta":{"content":[{"type":"tool_results","tool_results":{"content":[` + tt.second + `]}}]}}}`
			events, err := agentapi.DecodeEvents([]byte("[" + first + "," + second + "]"))
			require.NoError(t, err)

			res := Fold(events, 0)
			assert.Equal(t, tt.wantQuery, res.Query)
		})
	}
}

func TestFold_MessageIDLastWriteWins(t *testing.T) {
	events, err := agentapi.DecodeEvents([]byte(`[
		{"event":"message.created","data":{"message_id":10}},
		{"event":"message.completed","data":{}},
		{"event":"response.completed","data":{"message_id":"12"}},
		{"event":"message.completed","data":{"message_id":null}},
		{"event":"some.future.event","data":{"message_id":99}}
	]`))
	require.NoError(t, err)

	res := Fold(events, 3)
	assert.Equal(t, "12", res.AssistantMessageID)
}

func TestFold_UnknownEventsIgnored(t *testing.T) {
	events, err := agentapi.DecodeEvents([]byte(`[
		{"event":"response.status","data":{"status":"planning"}},
		{"event":"message.delta","data":{"delta":{"content":[{"type":"thinking","thinking":"hmm"},{"type":"text","text":"ok"}]}}},
		{"event":"error","data":"not even an object"},
		42
	]`))
	require.NoError(t, err)

	res := Fold(events, 2)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, "2", res.AssistantMessageID)
}

func TestNewReconciler_Defaults(t *testing.T) {
	r := NewReconciler(newFakeCaller(), store.NewMockStore(), Config{}, nil)
	assert.Equal(t, DefaultModel, r.cfg.Model)
	assert.Equal(t, DefaultUserAgent, r.cfg.UserAgent)
	assert.Equal(t, agentapi.DefaultTimeout, r.cfg.Timeout)
	assert.Equal(t, agentapi.DefaultRunPath, r.cfg.RunPath)
	assert.Equal(t, agentapi.DefaultThreadPath, r.cfg.ThreadPath)
}

func TestRunTurn_MalformedErrorReadsOnce(t *testing.T) {
	r := newTestReconciler(newFakeCaller(replyOK(`<html>`)), store.NewMockStore())

	_, err := r.RunTurn(context.Background(), "hi", "th", 0)
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.ErrorIs(t, err, agentapi.ErrMalformed)
	assert.Equal(t, 1, strings.Count(err.Error(), "malformed agent response"), err.Error())
}
