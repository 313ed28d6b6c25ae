package httputil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Doer issues one HTTP request. *http.Client satisfies it directly, so
// production code passes http.DefaultClient and tests pass a MockClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MockClient replays queued responses in order and records every request
// it saw. An exhausted queue fails the request, so a test that queues too
// few responses is caught at the call site instead of silently receiving
// an empty 200.
type MockClient struct {
	mu       sync.Mutex
	queue    []reply
	requests []*http.Request
}

type reply struct {
	status int
	body   string
	err    error
}

// NewMockClient returns a client with an empty queue.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Queue appends a canned response with the given status and body.
func (m *MockClient) Queue(status int, body string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, reply{status: status, body: body})
	return m
}

// QueueError appends a transport-level failure.
func (m *MockClient) QueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, reply{err: err})
	return m
}

// Do implements Doer from the queue.
func (m *MockClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.queue) == 0 {
		return nil, fmt.Errorf("no response queued for %s %s", req.Method, req.URL)
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &http.Response{
		StatusCode: next.status,
		Status:     fmt.Sprintf("%d %s", next.status, http.StatusText(next.status)),
		Body:       io.NopCloser(strings.NewReader(next.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Requests returns a copy of every recorded request, in arrival order.
func (m *MockClient) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Request, len(m.requests))
	copy(out, m.requests)
	return out
}
