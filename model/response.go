package model

import "strings"

// StreamingResponse accumulates one in-flight backend response. In
// non-streaming mode it receives a single chunk.
type StreamingResponse struct {
	model      string
	content    strings.Builder
	thinking   strings.Builder
	delta      string
	thinkDelta string
	toolCalls  []ToolCall
	done       bool
	doneReason string

	PromptEvalCount int
	EvalCount       int
	Chunks          int
}

func NewStreamingResponse() *StreamingResponse {
	return &StreamingResponse{}
}

// Add folds c into the accumulator and reports whether listeners should be
// notified: new content, new thinking, or done flipping to true.
func (r *StreamingResponse) Add(c Chunk) bool {
	r.Chunks++
	r.delta = c.Content
	r.thinkDelta = c.Thinking

	if c.Model != "" {
		r.model = c.Model
	}
	r.content.WriteString(c.Content)
	r.thinking.WriteString(c.Thinking)
	if len(c.ToolCalls) > 0 {
		r.toolCalls = append(r.toolCalls, c.ToolCalls...)
	}
	if c.PromptEvalCount > 0 {
		r.PromptEvalCount = c.PromptEvalCount
	}
	if c.EvalCount > 0 {
		r.EvalCount = c.EvalCount
	}

	flipped := false
	if c.Done && !r.done {
		r.done = true
		r.doneReason = c.DoneReason
		flipped = true
	}

	return c.Content != "" || c.Thinking != "" || flipped
}

// MarkDone finalizes the response without a done chunk (cancellation, early
// EOF). Returns true if this call flipped the flag.
func (r *StreamingResponse) MarkDone() bool {
	if r.done {
		return false
	}
	r.done = true
	r.delta = ""
	r.thinkDelta = ""
	return true
}

// Delta is the content added by the last chunk only.
func (r *StreamingResponse) Delta() string { return r.delta }

// ThinkingDelta is the thinking text added by the last chunk only.
func (r *StreamingResponse) ThinkingDelta() string { return r.thinkDelta }

// IsThinking reports whether the last chunk is a thinking chunk. Thinking
// wins when a chunk carries both.
func (r *StreamingResponse) IsThinking() bool { return r.thinkDelta != "" }

func (r *StreamingResponse) Content() string       { return r.content.String() }
func (r *StreamingResponse) Thinking() string      { return r.thinking.String() }
func (r *StreamingResponse) Done() bool            { return r.done }
func (r *StreamingResponse) DoneReason() string    { return r.doneReason }
func (r *StreamingResponse) Model() string         { return r.model }
func (r *StreamingResponse) ToolCalls() []ToolCall { return r.toolCalls }

// HasToolCalls is true when the backend asked for at least one tool.
func (r *StreamingResponse) HasToolCalls() bool { return len(r.toolCalls) > 0 }

// Message is the assistant message this response amounts to.
func (r *StreamingResponse) Message() Message {
	m := NewMessage(RoleAssistant, r.Content())
	m.Thinking = r.Thinking()
	if len(r.toolCalls) > 0 {
		m.ToolCalls = append([]ToolCall(nil), r.toolCalls...)
	}
	return m
}
