// ABOUTME: Tests for event stream decoding
// ABOUTME: Compares decoded tagged unions structurally and checks malformed-body detection

package agentapi

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestDecodeEvents_JSONArray(t *testing.T) {
	body := `[
		{"event":"message.delta","data":{"delta":{"content":[
			{"type":"text","text":"Hel"},
			{"type":"tool_results","tool_results":{"content":[
				{"type":"json","json":{"text":"X","sql":"SELECT 1"}},
				{"type":"json","json":{"text":"Y"}},
				{"type":"text","text":"ignored"}
			]}}
		]}}},
		{"event":"message.completed","data":{"message_id":42}},
		{"event":"message.created","data":{"message_id":"m-7"}},
		{"event":"response.completed","data":{}},
		{"event":"response.status","data":{"status":"done"}}
	]`

	got, err := DecodeEvents([]byte(body))
	require.NoError(t, err)

	want := []Event{
		MessageDelta{Content: []ContentItem{
			{Type: "text", Text: "Hel"},
			{Type: "tool_results", ToolResults: []ToolResult{
				{Type: "json", JSON: &ToolResultJSON{Text: "X", SQL: strPtr("SELECT 1")}},
				{Type: "json", JSON: &ToolResultJSON{Text: "Y"}},
				{Type: "text"},
			}},
		}},
		MessageMarker{Name: KindMessageCompleted, MessageID: "42", HasMessageID: true},
		MessageMarker{Name: KindMessageCreated, MessageID: "m-7", HasMessageID: true},
		MessageMarker{Name: KindResponseCompleted},
		UnknownEvent{Name: "response.status", Data: `{"status":"done"}`},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeEvents mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEvents_MissingFieldsTolerated(t *testing.T) {
	body := `[
		{"event":"message.delta"},
		{"event":"message.delta","data":{"delta":{"content":"nope"}}},
		{"event":"message.delta","data":{"delta":{"content":[1, {"type":"text"}, {"type":"tool_results"}]}}},
		{"event":"message.delta","data":{"delta":{"content":[{"type":"tool_results","tool_results":{"content":[{"type":"json","json":null}]}}]}}},
		{"data":{"message_id":3}},
		"stray",
		null
	]`

	got, err := DecodeEvents([]byte(body))
	require.NoError(t, err)

	want := []Event{
		MessageDelta{Content: []ContentItem{}},
		MessageDelta{Content: []ContentItem{}},
		MessageDelta{Content: []ContentItem{{Type: "text"}, {Type: "tool_results", ToolResults: []ToolResult{}}}},
		MessageDelta{Content: []ContentItem{{Type: "tool_results", ToolResults: []ToolResult{{Type: "json"}}}}},
		UnknownEvent{Name: "", Data: `{"message_id":3}`},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeEvents mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEvents_SSE(t *testing.T) {
	body := ": keepalive\n\n" +
		"event: message.delta\n" +
		`data: {"delta":{"content":[{"type":"text","text":"a"}]}}` + "\n\n" +
		"event: message.completed\n" +
		`data: {"message_id":5}` + "\n\n" +
		"data: [DONE]\n"

	got, err := DecodeEvents([]byte(body))
	require.NoError(t, err)

	want := []Event{
		MessageDelta{Content: []ContentItem{{Type: "text", Text: "a"}}},
		MessageMarker{Name: KindMessageCompleted, MessageID: "5", HasMessageID: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeEvents mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEvents_Empty(t *testing.T) {
	for _, body := range []string{"", "  \n", "[]"} {
		got, err := DecodeEvents([]byte(body))
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestDecodeEvents_Malformed(t *testing.T) {
	bodies := []string{
		`[{"event":"message.delta"`,
		`{"event":"message.delta"}`,
		`<html>gateway timeout</html>`,
		"event: message.delta\ndata: {broken\n\n",
		`"just a string"`,
		`[1,"x",null,{"event":"message.completed","data":{"message_id":"7"}}]`,
		`[{"event":"message.completed","data":{"message_id":7}},null]`,
		`[[{"event":"message.delta"}]]`,
	}
	for _, body := range bodies {
		_, err := DecodeEvents([]byte(body))
		assert.True(t, errors.Is(err, ErrMalformed), "body %q", body)
	}
}

func TestDecodeEvents_NonObjectElementNamed(t *testing.T) {
	_, err := DecodeEvents([]byte(`[{"event":"x"},42]`))
	require.Error(t, err)
	assert.Equal(t, "undecodable response body: event 1 is Number, not an object", err.Error())
}

func TestEventKinds(t *testing.T) {
	assert.Equal(t, KindMessageDelta, MessageDelta{}.Kind())
	assert.Equal(t, KindResponseCompleted, MessageMarker{Name: KindResponseCompleted}.Kind())
	assert.Equal(t, EventKind("x.y"), UnknownEvent{Name: "x.y"}.Kind())
}
