// ABOUTME: Scripted agentapi.Caller for conversation tests
// ABOUTME: Returns queued responses or errors in order and records every request

package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/2389/agentchat/internal/agentapi"
)

type fakeReply struct {
	status int
	body   string
	err    error
}

type fakeCaller struct {
	mu       sync.Mutex
	replies  []fakeReply
	requests []*agentapi.Request
}

func newFakeCaller(replies ...fakeReply) *fakeCaller {
	return &fakeCaller{replies: replies}
}

func (f *fakeCaller) Call(ctx context.Context, req *agentapi.Request) (*agentapi.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return nil, errors.New("fake caller: no reply queued")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &agentapi.Response{Status: r.status, Body: []byte(r.body)}, nil
}

func (f *fakeCaller) lastRequest() *agentapi.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func replyOK(body string) fakeReply { return fakeReply{status: 200, body: body} }

func replyStatus(code int) fakeReply { return fakeReply{status: code, body: `{"message":"nope"}`} }

func replyErr(err error) fakeReply { return fakeReply{err: err} }

const helloStream = `[
 {"event":"message.delta","data":{"delta":{"content":[{"type":"text","text":"Hel"}]}}},
 {"event":"message.delta","data":{"delta":{"content":[{"type":"text","text":"lo"}]}}},
 {"event":"message.completed","data":{"message_id":42}}
]`
