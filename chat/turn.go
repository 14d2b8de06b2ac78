package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ollmchat/config"
	"ollmchat/model"
	"ollmchat/tools"
)

// Turn is one conversation as seen by the caller. A single Execute may
// expand into several backend round-trips while tools run.
type Turn struct {
	engine *Engine

	// run serializes Execute and Reply. mu guards the fields below and is
	// never held while sending or publishing, so subscribers may read the
	// turn from their handlers.
	run sync.Mutex

	mu       sync.Mutex
	conn     model.Connection
	messages []model.Message
	last     *model.StreamingResponse
	// lastAppended is set when last's assistant message is already part of
	// messages (the loop stopped after appending it).
	lastAppended bool
	rounds       int
}

// Connection returns the request settings used by this turn.
func (t *Turn) Connection() model.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// SetConnection changes model and options for the next request.
func (t *Turn) SetConnection(conn model.Connection) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
}

// Messages returns a copy of the conversation so far.
func (t *Turn) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.Clone()
	}
	return out
}

// Transcript is Messages followed by the latest answer, if it is not part of
// the conversation yet. This is what history stores.
func (t *Turn) Transcript() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, 0, len(t.messages)+1)
	for _, m := range t.messages {
		out = append(out, m.Clone())
	}
	if t.last != nil && !t.lastAppended {
		out = append(out, t.last.Message())
	}
	return out
}

// Last is the response returned by the latest Execute.
func (t *Turn) Last() *model.StreamingResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Rounds is the number of tool rounds the latest Execute ran.
func (t *Turn) Rounds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rounds
}

// Reply appends the previous assistant message, tool calls included, and
// text as a new user message, then executes.
func (t *Turn) Reply(ctx context.Context, text string) (*model.StreamingResponse, error) {
	t.run.Lock()
	defer t.run.Unlock()

	t.mu.Lock()
	if t.last != nil && !t.lastAppended {
		t.messages = append(t.messages, t.last.Message())
	}
	t.last = nil
	t.lastAppended = false
	t.messages = append(t.messages, model.NewMessage(model.RoleUser, text))
	t.mu.Unlock()

	return t.execute(ctx)
}

// Execute sends the conversation and runs tool calls until the backend
// produces an answer.
//
// Tool calls are handled when the response is done and requests at least
// one tool. After the tools ran the conversation is sent again; the loop
// repeats only while the new response is done, requests tools and carries
// no content. A continuation with content is returned even if it also
// requests tools; those calls are not run.
//
// Transport failures are returned and leave no answer behind for Reply.
// Cancelling ctx returns the response so far, marked done, without error.
func (t *Turn) Execute(ctx context.Context) (*model.StreamingResponse, error) {
	t.run.Lock()
	defer t.run.Unlock()
	return t.execute(ctx)
}

func (t *Turn) execute(ctx context.Context) (*model.StreamingResponse, error) {
	t.mu.Lock()
	t.rounds = 0
	t.mu.Unlock()

	resp, err := t.send(ctx)
	if err != nil {
		t.finish(nil, false)
		return resp, err
	}

	appended := false
	for first := true; t.shouldRunTools(resp, first); first = false {
		if ctx.Err() != nil {
			break
		}
		if max := t.engine.MaxToolRounds; max > 0 && t.Rounds() >= max {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[chat] stopping after %d tool rounds", max)
			}
			break
		}

		t.appendMessage(resp.Message())
		appended = true
		t.runTools(ctx, resp.ToolCalls())

		t.mu.Lock()
		t.rounds++
		t.mu.Unlock()

		if ctx.Err() != nil {
			break
		}

		next, err := t.send(ctx)
		if err != nil {
			// The assistant message and tool replies of the finished round
			// stay; the failed response does not.
			t.finish(nil, false)
			return next, err
		}
		resp = next
		appended = false
	}

	t.finish(resp, appended)
	t.engine.publish(Event{Type: EventContent, Response: resp, Message: resp.Message()})
	return resp, nil
}

// finish records the answer Reply builds on. nil means there is none.
func (t *Turn) finish(resp *model.StreamingResponse, appended bool) {
	t.mu.Lock()
	t.last = resp
	t.lastAppended = appended
	t.mu.Unlock()
}

func (t *Turn) appendMessage(m model.Message) {
	t.mu.Lock()
	t.messages = append(t.messages, m)
	t.mu.Unlock()
}

// shouldRunTools is the loop guard. The first response only needs to be
// done with tool calls; continuations must also be empty.
func (t *Turn) shouldRunTools(resp *model.StreamingResponse, first bool) bool {
	if !resp.Done() || !resp.HasToolCalls() {
		return false
	}
	if first {
		return true
	}
	if resp.Content() != "" {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[chat] continuation has content and %d tool calls; not running them", len(resp.ToolCalls()))
		}
		return false
	}
	return true
}

func (t *Turn) request() *model.ChatRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	req := &model.ChatRequest{
		Model:    t.conn.Model,
		Messages: make([]model.Message, len(t.messages)),
		Stream:   t.conn.Stream,
		Think:    t.conn.Think,
		Options:  t.conn.Options,
	}
	copy(req.Messages, t.messages)
	if t.engine.Registry != nil {
		req.Tools = t.engine.Registry.Definitions()
	}
	return req
}

// send performs one backend round-trip. The returned response is always
// done, also on cancellation and on error.
func (t *Turn) send(ctx context.Context) (*model.StreamingResponse, error) {
	req := t.request()
	resp := model.NewStreamingResponse()

	t.engine.publish(Event{Type: EventTurnSent, Request: req})
	if config.DebugLog != nil {
		config.DebugLog.Printf("[chat] sending %d messages (stream=%v)", len(req.Messages), req.Stream)
	}

	if !req.Stream {
		chunk, err := t.engine.Transport.Chat(ctx, req)
		if err != nil {
			resp.MarkDone()
			if ctx.Err() != nil {
				return resp, nil
			}
			return resp, fmt.Errorf("failed to send chat request: %w", err)
		}
		chunk.Done = true
		resp.Add(chunk)
		return resp, nil
	}

	started := false
	err := t.engine.Transport.ChatStream(ctx, req, func(c model.Chunk) error {
		if !started {
			started = true
			t.engine.publish(Event{Type: EventStreamStart, Response: resp})
		}
		if resp.Add(c) {
			t.engine.publish(Event{Type: EventChunk, Response: resp})
		}
		return nil
	})

	if err != nil && ctx.Err() == nil {
		resp.MarkDone()
		return resp, fmt.Errorf("failed to stream chat response: %w", err)
	}

	// Cancelled or the stream ended without a done chunk: finish it so
	// listeners can finalize.
	if resp.MarkDone() {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[chat] stream ended without done (cancelled=%v)", ctx.Err() != nil)
		}
		t.engine.publish(Event{Type: EventChunk, Response: resp})
	}
	return resp, nil
}

// runTools executes calls in order and appends one tool message per call.
func (t *Turn) runTools(ctx context.Context, calls []model.ToolCall) {
	statusCtx := tools.WithStatus(ctx, func(s string) {
		t.engine.publish(Event{Type: EventToolMessage, Text: s})
	})

	for _, call := range calls {
		var tool tools.Tool
		ok := false
		if t.engine.Registry != nil {
			tool, ok = t.engine.Registry.Get(call.Name)
		}

		if !ok {
			text := t.unavailable(call.Name)
			msg := model.NewToolMessage(call, text)
			t.appendMessage(msg)
			t.engine.publish(Event{Type: EventToolMessage, Text: text, Message: msg})
			if config.DebugLog != nil {
				config.DebugLog.Printf("[chat] unknown tool %q", call.Name)
			}
			continue
		}

		out := tools.Execute(statusCtx, tool, tools.Args(call.Arguments), t.engine.Authority)
		t.appendMessage(model.NewToolMessage(call, out))
	}
}

func (t *Turn) unavailable(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sTool '%s' is not available.", tools.ErrorPrefix, name)
	if t.engine.Registry == nil {
		return b.String()
	}
	if s := t.engine.Registry.Suggest(name); s != "" {
		fmt.Fprintf(&b, " Did you mean '%s'?", s)
	}
	var names []string
	for _, tool := range t.engine.Registry.Active() {
		names = append(names, tool.Name())
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, " Available tools: %s.", strings.Join(names, ", "))
	}
	return b.String()
}
