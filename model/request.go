package model

import (
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Options are the optional sampling parameters. A nil field means "let the
// backend decide" and is left out of the request entirely.
type Options struct {
	Temperature *float64
	TopP        *float64
	TopK        *int
	NumCtx      *int
	NumPredict  *int
	Seed        *int
	Stop        []string
}

// Map renders the options the way the wire protocol expects, omitting unset
// fields. Returns nil when nothing is set.
func (o Options) Map() map[string]any {
	m := map[string]any{}
	if o.Temperature != nil {
		m["temperature"] = *o.Temperature
	}
	if o.TopP != nil {
		m["top_p"] = *o.TopP
	}
	if o.TopK != nil {
		m["top_k"] = *o.TopK
	}
	if o.NumCtx != nil {
		m["num_ctx"] = *o.NumCtx
	}
	if o.NumPredict != nil {
		m["num_predict"] = *o.NumPredict
	}
	if o.Seed != nil {
		m["seed"] = *o.Seed
	}
	if len(o.Stop) > 0 {
		m["stop"] = o.Stop
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Float and Int build option values inline.
func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }

// Connection is the backend configuration used for a single request.
type Connection struct {
	BaseURL string
	APIKey  string
	Model   string
	Stream  bool
	Think   bool
	Options Options
	Timeout time.Duration
}

// ChatRequest is everything the transport needs for one backend round-trip.
type ChatRequest struct {
	Model    string
	Messages []Message
	Tools    []mcptypes.Tool
	Stream   bool
	Think    bool
	Options  Options
}

// Chunk is one decoded backend object. In non-streaming mode the whole
// response is a single chunk.
type Chunk struct {
	Model           string
	Content         string
	Thinking        string
	ToolCalls       []ToolCall
	Done            bool
	DoneReason      string
	PromptEvalCount int
	EvalCount       int
}
