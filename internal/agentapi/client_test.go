// ABOUTME: Tests for the HTTP call primitive against httptest servers
// ABOUTME: Covers headers, query params, JSON bodies, status passthrough, timeouts and transport errors

package agentapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	hc := &http.Client{Transport: &http.Transport{}}
	t.Cleanup(hc.CloseIdleConnections)
	c, err := NewClient(baseURL, append([]Option{WithHTTPClient(hc)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestClient_Call_SendsRequest(t *testing.T) {
	type captured struct {
		method, path, query string
		auth, ua, reqID     string
		contentType         string
		body                map[string]any
	}
	var got captured
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.Query().Get("limit")
		got.auth = r.Header.Get("Authorization")
		got.ua = r.Header.Get("User-Agent")
		got.reqID = r.Header.Get("X-Request-ID")
		got.contentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &got.body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"thread_id":"abc"}`))
	})

	c := newTestClient(t, srv.URL+"/", WithToken("secret"))
	resp, err := c.Call(context.Background(), &Request{
		Method:    http.MethodPost,
		Path:      DefaultThreadPath,
		Headers:   map[string]string{"User-Agent": "agentchat-test"},
		Params:    map[string]string{"limit": "5"},
		Body:      map[string]any{"origin_application": "agentchat"},
		RequestID: "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.Status)
	assert.JSONEq(t, `{"thread_id":"abc"}`, string(resp.Body))
	assert.Equal(t, "req-1", resp.RequestID)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, DefaultThreadPath, got.path)
	assert.Equal(t, "5", got.query)
	assert.Equal(t, "Bearer secret", got.auth)
	assert.Equal(t, "agentchat-test", got.ua)
	assert.Equal(t, "req-1", got.reqID)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "agentchat", got.body["origin_application"])
}

func TestClient_Call_GeneratesRequestID(t *testing.T) {
	var seen string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	})

	c := newTestClient(t, srv.URL)
	resp, err := c.Call(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, resp.RequestID, seen)
}

func TestClient_Call_NoBodyNoContentType(t *testing.T) {
	var contentType string
	var length int64
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		length = r.ContentLength
	})

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), &Request{Method: http.MethodGet, Path: DefaultThreadPath})
	require.NoError(t, err)
	assert.Empty(t, contentType)
	assert.Equal(t, int64(0), length)
}

func TestClient_Call_ErrorStatusIsNotAnError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"bad token"}`))
	})

	c := newTestClient(t, srv.URL)
	resp, err := c.Call(context.Background(), &Request{Path: DefaultRunPath, Body: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Contains(t, string(resp.Body), "bad token")
}

func TestClient_Call_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	c := newTestClient(t, srv.URL)
	start := time.Now()
	_, err := c.Call(context.Background(), &Request{Path: DefaultRunPath, Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_Call_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.Call(context.Background(), &Request{Path: DefaultThreadPath})
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("ftp://example.com")
	assert.Error(t, err)
	_, err = NewClient("://nope")
	assert.Error(t, err)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Path: DefaultRunPath, Status: 503}
	assert.Equal(t, "/api/v2/cortex/agent:run returned status 503", err.Error())

	err.Body = "overloaded"
	assert.Contains(t, err.Error(), ": overloaded")
	assert.Equal(t, "transport_error", statusLabel(StatusTransportError))
	assert.Equal(t, "200", statusLabel(200))
}
