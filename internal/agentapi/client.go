// ABOUTME: HTTP call primitive for the remote managed agent API
// ABOUTME: Sends method/path/headers/params/body with a per-call timeout and returns status plus raw body

package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusTransportError is the status recorded when no HTTP response was received.
const StatusTransportError = -1

// DefaultTimeout bounds a call when the request does not carry its own timeout.
const DefaultTimeout = 60 * time.Second

// maxResponseBytes caps how much of a response body is read into memory.
const maxResponseBytes = 32 << 20

// Request is one remote call.
type Request struct {
	Method    string
	Path      string
	Headers   map[string]string
	Params    map[string]string
	Body      any    // JSON-serializable; nil sends no body
	RequestID string // correlation id; generated when empty
	Timeout   time.Duration
}

// Response is the raw outcome of a call that reached the server.
type Response struct {
	Status    int
	Body      []byte
	RequestID string
}

// Caller is the single remote primitive the conversation layer depends on.
// A non-nil error means no HTTP response was received (transport failure or timeout);
// any HTTP status, including errors, is reported through Response.Status.
type Caller interface {
	Call(ctx context.Context, req *Request) (*Response, error)
}

// StatusError describes a call that completed with a non-200 status.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Path, e.Status, e.Body)
}

// Client calls the agent API over HTTP.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets a static bearer token sent on every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger.With("component", "agentapi") }
}

// NewClient creates a Client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing agent base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("agent base url must be http or https, got %q", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		logger:     slog.Default().With("component", "agentapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call performs req and returns the status and raw body.
func (c *Client) Call(ctx context.Context, req *Request) (*Response, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := c.newHTTPRequest(ctx, req, requestID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		observeCall(req.Path, StatusTransportError, time.Since(start))
		c.logger.Warn("agent call failed",
			"path", req.Path,
			"request_id", requestID,
			"duration", time.Since(start),
			"error", err)
		return nil, fmt.Errorf("calling %s: %w", req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		observeCall(req.Path, StatusTransportError, time.Since(start))
		return nil, fmt.Errorf("reading %s response: %w", req.Path, err)
	}

	elapsed := time.Since(start)
	observeCall(req.Path, resp.StatusCode, elapsed)
	c.logger.Debug("agent call completed",
		"method", httpReq.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"bytes", len(body),
		"request_id", requestID,
		"duration", elapsed)

	return &Response{
		Status:    resp.StatusCode,
		Body:      body,
		RequestID: requestID,
	}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req *Request, requestID string) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	u := c.baseURL.JoinPath(req.Path)
	if len(req.Params) > 0 {
		q := u.Query()
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// IsTimeout reports whether err came from the per-call deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// statusLabel renders a status for metric labels.
func statusLabel(status int) string {
	if status == StatusTransportError {
		return "transport_error"
	}
	return strconv.Itoa(status)
}
