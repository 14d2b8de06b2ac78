package testutil

import (
	"context"
	"fmt"
	"sync"

	"ollmchat/model"
	"ollmchat/permission"
	"ollmchat/tools"
)

// MockTransport replays scripted backend responses, one per request.
// Each response is a list of chunks; in non-streaming mode the chunks are
// merged into one.
type MockTransport struct {
	mu        sync.Mutex
	Responses [][]model.Chunk
	Requests  []model.ChatRequest

	// Optional overrides.
	ChatFunc       func(ctx context.Context, req *model.ChatRequest) (model.Chunk, error)
	ChatStreamFunc func(ctx context.Context, req *model.ChatRequest, fn func(model.Chunk) error) error
}

// NewMockTransport scripts the given responses.
func NewMockTransport(responses ...[]model.Chunk) *MockTransport {
	return &MockTransport{Responses: responses}
}

func (m *MockTransport) record(req *model.ChatRequest) ([]model.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := *req
	snapshot.Messages = make([]model.Message, len(req.Messages))
	for i, msg := range req.Messages {
		snapshot.Messages[i] = msg.Clone()
	}
	m.Requests = append(m.Requests, snapshot)

	if len(m.Responses) == 0 {
		return nil, fmt.Errorf("mock transport: no scripted response for request %d", len(m.Requests))
	}
	next := m.Responses[0]
	m.Responses = m.Responses[1:]
	return next, nil
}

// Calls is the number of requests seen so far.
func (m *MockTransport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent request.
func (m *MockTransport) LastRequest() model.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return model.ChatRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

func (m *MockTransport) Chat(ctx context.Context, req *model.ChatRequest) (model.Chunk, error) {
	if m.ChatFunc != nil {
		m.record(req)
		return m.ChatFunc(ctx, req)
	}
	chunks, err := m.record(req)
	if err != nil {
		return model.Chunk{}, err
	}

	var merged model.Chunk
	for _, c := range chunks {
		merged.Model = c.Model
		merged.Content += c.Content
		merged.Thinking += c.Thinking
		merged.ToolCalls = append(merged.ToolCalls, c.ToolCalls...)
	}
	merged.Done = true
	return merged, nil
}

func (m *MockTransport) ChatStream(ctx context.Context, req *model.ChatRequest, fn func(model.Chunk) error) error {
	if m.ChatStreamFunc != nil {
		m.record(req)
		return m.ChatStreamFunc(ctx, req, fn)
	}
	chunks, err := m.record(req)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if ctx.Err() != nil {
			return nil
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// MockTool is a configurable tool that records its calls.
type MockTool struct {
	*tools.Base

	// Request is returned by Prepare; nil means no permission check.
	Request *permission.Request
	RunFunc func(ctx context.Context, args tools.Args) (string, error)

	mu    sync.Mutex
	calls []tools.Args
}

// NewMockTool builds a tool from a doc block that returns result.
func NewMockTool(name, doc, result string) *MockTool {
	return &MockTool{
		Base: tools.NewBase(name, doc),
		RunFunc: func(context.Context, tools.Args) (string, error) {
			return result, nil
		},
	}
}

func (m *MockTool) Prepare(ctx context.Context, args tools.Args) (*permission.Request, error) {
	if m.Request == nil {
		return nil, nil
	}
	req := *m.Request
	return &req, nil
}

func (m *MockTool) Run(ctx context.Context, args tools.Args) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.mu.Unlock()
	return m.RunFunc(ctx, args)
}

// Calls returns the arguments of every Run so far.
func (m *MockTool) Calls() []tools.Args {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tools.Args(nil), m.calls...)
}

// MockAuthorizer answers every request with Allow and records it.
type MockAuthorizer struct {
	Allow bool
	Err   error

	mu       sync.Mutex
	Requests []permission.Request
}

func (m *MockAuthorizer) Request(ctx context.Context, req permission.Request) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	return m.Allow, m.Err
}

// Definitions is a helper for asserting on request tool lists.
func Definitions(req model.ChatRequest) []string {
	names := make([]string, 0, len(req.Tools))
	for _, t := range req.Tools {
		names = append(names, t.Name)
	}
	return names
}
