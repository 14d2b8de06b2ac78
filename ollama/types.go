package ollama

import (
	"encoding/json"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Wire types for POST /api/chat.
//
// These mirror api.ChatRequest, api.Message and api.ToolCall from
// github.com/ollama/ollama/api (v0.12.6), which cannot carry everything a
// tool-calling conversation needs:
//   - api.Message has ToolName but no tool_call_id or name, so replies could
//     not be tied back to the call ID the backend assigned.
//   - api.ToolCallFunction.Arguments is api.ToolCallFunctionArguments (a
//     map), so decoding fails on models that send arguments as a JSON
//     string; wireFunctionCall keeps them raw for ParseArguments.
//   - api.ToolProperty has no properties or required fields, so object
//     parameters (@type declarations) would lose their nested schema.
//   - api.ChatResponse has no error field for the in-band {"error": ...}
//     line a failing stream ends with.
// Listing models and status errors still go through api.Client.

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []wireMessage  `json:"messages"`
	Tools    []wireTool     `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
	Think    *bool          `json:"think,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Thinking   string         `json:"thinking,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	// ToolName is what current Ollama servers read for tool replies.
	ToolName string `json:"tool_name,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Index     int             `json:"index,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// wireTool keeps the full JSON schema of the tool, nested objects included.
type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Parameters  mcptypes.ToolInputSchema `json:"parameters"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         wireMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	EvalCount       int         `json:"eval_count,omitempty"`
	Error           string      `json:"error,omitempty"`
}
