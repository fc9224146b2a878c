// ABOUTME: Sanity probes for the agent API endpoints
// ABOUTME: Reports status and a short body sample per call, or the transport error

package agentapi

import (
	"context"
	"net/http"
	"time"
)

// ProbeTimeout bounds each sanity probe.
const ProbeTimeout = 5 * time.Second

// probeSampleLen is how much of a probe response body is kept.
const probeSampleLen = 200

// ProbeCall identifies one probe.
type ProbeCall struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// ProbeResult is the outcome of one probe. Status is set when a response
// arrived; Error when it did not.
type ProbeResult struct {
	Call          ProbeCall `json:"call"`
	Status        int       `json:"status,omitempty"`
	ContentSample string    `json:"content_sample,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Probe is a request issued by Sanity.
type Probe struct {
	Method string
	Path   string
	Body   any
}

// DefaultProbes creates a thread, lists threads, and runs with an empty
// message list. Only the first is expected to succeed; the others show
// whether the endpoints are reachable and how they reject the call.
func DefaultProbes(threadPath, runPath string) []Probe {
	if threadPath == "" {
		threadPath = DefaultThreadPath
	}
	if runPath == "" {
		runPath = DefaultRunPath
	}
	return []Probe{
		{Method: http.MethodPost, Path: threadPath, Body: map[string]any{}},
		{Method: http.MethodGet, Path: threadPath},
		{Method: http.MethodPost, Path: runPath, Body: map[string]any{"messages": []any{}}},
	}
}

// Sanity issues each probe in order and never fails as a whole.
func Sanity(ctx context.Context, caller Caller, probes []Probe, timeout time.Duration) []ProbeResult {
	if timeout <= 0 {
		timeout = ProbeTimeout
	}

	results := make([]ProbeResult, 0, len(probes))
	for _, p := range probes {
		res := ProbeResult{Call: ProbeCall{Method: p.Method, Path: p.Path, TimeoutMS: timeout.Milliseconds()}}

		resp, err := caller.Call(ctx, &Request{
			Method:  p.Method,
			Path:    p.Path,
			Body:    p.Body,
			Timeout: timeout,
		})
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Status = resp.Status
			res.ContentSample = sample(resp.Body)
		}
		results = append(results, res)
	}
	return results
}

// sample truncates a body on a rune boundary.
func sample(body []byte) string {
	s := string(body)
	if len(s) <= probeSampleLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= probeSampleLen {
		return s
	}
	return string(runes[:probeSampleLen])
}
