// ABOUTME: Request and response payload shapes for the thread and agent:run endpoints
// ABOUTME: Builds the run body with model, thread context, one user message and static tool bindings

package agentapi

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Default endpoint paths.
const (
	DefaultThreadPath = "/api/v2/cortex/threads"
	DefaultRunPath    = "/api/v2/cortex/agent:run"
)

// Tool types understood by the agent API.
const (
	ToolTypeAnalyst = "cortex_analyst_text_to_sql"
	ToolTypeSearch  = "cortex_search"
)

// RunRequest is the body of an agent:run call.
type RunRequest struct {
	Model           string                  `json:"model"`
	ThreadID        string                  `json:"thread_id"`
	ParentMessageID int64                   `json:"parent_message_id"`
	Messages        []RunMessage            `json:"messages"`
	Tools           []Tool                  `json:"tools,omitempty"`
	ToolResources   map[string]ToolResource `json:"tool_resources,omitempty"`
}

// RunMessage is one message of a run request.
type RunMessage struct {
	Role    string        `json:"role"`
	Content []TextContent `json:"content"`
}

// TextContent is a text content item.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Tool binds a named tool instance.
type Tool struct {
	ToolSpec ToolSpec `json:"tool_spec"`
}

// ToolSpec names a tool and its type.
type ToolSpec struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ToolResource configures the resource behind a tool binding.
type ToolResource struct {
	SemanticModelFile string `json:"semantic_model_file,omitempty"`
	Name              string `json:"name,omitempty"`
	MaxResults        int    `json:"max_results,omitempty"`
}

// ToolBindings is static configuration for the tools attached to every run.
// Empty fields leave the corresponding tool out.
type ToolBindings struct {
	AnalystName       string
	SemanticModelFile string
	SearchName        string
	SearchService     string
	MaxResults        int
}

// NewRunRequest builds the body for one user turn.
func NewRunRequest(model, threadID string, parentMessageID int64, prompt string, tools ToolBindings) *RunRequest {
	req := &RunRequest{
		Model:           model,
		ThreadID:        threadID,
		ParentMessageID: parentMessageID,
		Messages: []RunMessage{{
			Role:    "user",
			Content: []TextContent{{Type: "text", Text: prompt}},
		}},
	}
	tools.apply(req)
	return req
}

func (b ToolBindings) apply(req *RunRequest) {
	resources := map[string]ToolResource{}

	if b.SemanticModelFile != "" {
		name := b.AnalystName
		if name == "" {
			name = "analyst1"
		}
		req.Tools = append(req.Tools, Tool{ToolSpec: ToolSpec{Type: ToolTypeAnalyst, Name: name}})
		resources[name] = ToolResource{SemanticModelFile: b.SemanticModelFile}
	}

	if b.SearchService != "" {
		name := b.SearchName
		if name == "" {
			name = "search1"
		}
		req.Tools = append(req.Tools, Tool{ToolSpec: ToolSpec{Type: ToolTypeSearch, Name: name}})
		resources[name] = ToolResource{Name: b.SearchService, MaxResults: b.MaxResults}
	}

	if len(resources) > 0 {
		req.ToolResources = resources
	}
}

// ParseThreadID extracts thread_id from a thread-creation response body.
// Numeric ids are accepted in their literal form.
func ParseThreadID(body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("%w: empty thread response", ErrMalformed)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: thread response is not JSON", ErrMalformed)
	}
	res := gjson.GetBytes(body, "thread_id")
	switch res.Type {
	case gjson.String:
		return res.Str, nil
	case gjson.Number:
		return res.Raw, nil
	default:
		return "", nil
	}
}
