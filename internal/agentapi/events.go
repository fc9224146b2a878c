// ABOUTME: Tagged-union decoding of the agent:run event stream
// ABOUTME: Accepts a JSON array of {event,data} objects or SSE frames; unknown kinds and missing fields are tolerated

package agentapi

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformed is returned when a response body cannot be decoded at all.
var ErrMalformed = errors.New("undecodable response body")

// EventKind is the tag of an event.
type EventKind string

const (
	KindMessageDelta      EventKind = "message.delta"
	KindMessageCompleted  EventKind = "message.completed"
	KindMessageCreated    EventKind = "message.created"
	KindResponseCompleted EventKind = "response.completed"
)

// Content item and tool result types.
const (
	ContentTypeText        = "text"
	ContentTypeToolResults = "tool_results"
	ResultTypeJSON         = "json"
)

// Event is one decoded entry of the stream. Concrete types are MessageDelta,
// MessageMarker and UnknownEvent.
type Event interface {
	Kind() EventKind
}

// MessageDelta carries incremental content.
type MessageDelta struct {
	Content []ContentItem
}

// Kind implements Event.
func (MessageDelta) Kind() EventKind { return KindMessageDelta }

// ContentItem is one entry of a delta. Text is set for "text" items and
// ToolResults for "tool_results" items; other types carry only Type.
type ContentItem struct {
	Type        string
	Text        string
	ToolResults []ToolResult
}

// ToolResult is one entry of a tool_results item. JSON is nil unless Type is
// "json" and the payload is an object.
type ToolResult struct {
	Type string
	JSON *ToolResultJSON
}

// ToolResultJSON is the structured output of the analyst tool.
type ToolResultJSON struct {
	Text string
	SQL  *string // nil when the key is absent; a present null decodes as ""
}

// MessageMarker is any of the events that may name the assistant message id.
type MessageMarker struct {
	Name EventKind
	// MessageID is the literal id: number text or string contents. It is only
	// meaningful when HasMessageID is true and may still be non-numeric.
	MessageID    string
	HasMessageID bool
}

// Kind implements Event.
func (m MessageMarker) Kind() EventKind { return m.Name }

// UnknownEvent preserves events this client does not interpret.
type UnknownEvent struct {
	Name EventKind
	Data string
}

// Kind implements Event.
func (u UnknownEvent) Kind() EventKind { return u.Name }

// DecodeEvents decodes a run response body. An empty body is an empty stream.
// Every array element must be an object; fields inside an event are tolerant.
func DecodeEvents(body []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []Event{}, nil
	}

	if trimmed[0] == '[' {
		if !gjson.ValidBytes(trimmed) {
			return nil, fmt.Errorf("%w: invalid JSON event array", ErrMalformed)
		}
		events := []Event{}
		var badErr error
		gjson.ParseBytes(trimmed).ForEach(func(_, ev gjson.Result) bool {
			if !ev.IsObject() {
				badErr = fmt.Errorf("%w: event %d is %s, not an object", ErrMalformed, len(events), ev.Type)
				return false
			}
			events = append(events, decodeEvent(ev.Get("event").String(), ev.Get("data")))
			return true
		})
		if badErr != nil {
			return nil, badErr
		}
		return events, nil
	}

	if looksLikeSSE(trimmed) {
		return decodeSSE(trimmed)
	}

	return nil, fmt.Errorf("%w: expected a JSON array or event stream", ErrMalformed)
}

func decodeEvent(name string, data gjson.Result) Event {
	kind := EventKind(name)
	switch kind {
	case KindMessageDelta:
		return decodeDelta(data)
	case KindMessageCompleted, KindMessageCreated, KindResponseCompleted:
		marker := MessageMarker{Name: kind}
		id := data.Get("message_id")
		if id.Exists() && id.Type != gjson.Null {
			marker.HasMessageID = true
			if id.Type == gjson.String {
				marker.MessageID = id.Str
			} else {
				marker.MessageID = id.Raw
			}
		}
		return marker
	default:
		return UnknownEvent{Name: kind, Data: data.Raw}
	}
}

func decodeDelta(data gjson.Result) MessageDelta {
	delta := MessageDelta{Content: []ContentItem{}}
	data.Get("delta.content").ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		ci := ContentItem{Type: item.Get("type").String()}
		switch ci.Type {
		case ContentTypeText:
			if text := item.Get("text"); text.Type == gjson.String {
				ci.Text = text.Str
			}
		case ContentTypeToolResults:
			ci.ToolResults = decodeToolResults(item.Get("tool_results.content"))
		}
		delta.Content = append(delta.Content, ci)
		return true
	})
	return delta
}

func decodeToolResults(content gjson.Result) []ToolResult {
	results := []ToolResult{}
	content.ForEach(func(_, res gjson.Result) bool {
		if !res.IsObject() {
			return true
		}
		tr := ToolResult{Type: res.Get("type").String()}
		if tr.Type == ResultTypeJSON {
			if j := res.Get("json"); j.IsObject() {
				out := &ToolResultJSON{}
				if text := j.Get("text"); text.Type == gjson.String {
					out.Text = text.Str
				}
				if sql := j.Get("sql"); sql.Exists() {
					v := sql.String()
					out.SQL = &v
				}
				tr.JSON = out
			}
		}
		results = append(results, tr)
		return true
	})
	return results
}

func looksLikeSSE(body []byte) bool {
	return bytes.HasPrefix(body, []byte("event:")) ||
		bytes.HasPrefix(body, []byte("data:")) ||
		bytes.HasPrefix(body, []byte(":"))
}

// decodeSSE parses text/event-stream frames whose data lines hold the event's data object.
func decodeSSE(body []byte) ([]Event, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), maxResponseBytes)

	events := []Event{}
	var eventType string
	var dataLines []string

	flush := func() error {
		defer func() {
			eventType = ""
			dataLines = nil
		}()
		if len(dataLines) == 0 {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		if strings.TrimSpace(data) == "[DONE]" {
			return nil
		}
		if !gjson.Valid(data) {
			return fmt.Errorf("%w: invalid JSON in %q frame", ErrMalformed, eventType)
		}
		events = append(events, decodeEvent(eventType, gjson.Parse(data)))
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return events, nil
}
