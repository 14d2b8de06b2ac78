package ollama

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"ollmchat/config"
	"ollmchat/model"
)

// buildRequest converts a model request into the wire body. Hidden
// messages never leave the process.
func buildRequest(req *model.ChatRequest) chatRequest {
	body := chatRequest{
		Model:    req.Model,
		Messages: make([]wireMessage, 0, len(req.Messages)),
		Tools:    convertTools(req.Tools),
		Stream:   req.Stream,
		Options:  req.Options.Map(),
	}
	if req.Think {
		think := true
		body.Think = &think
	}

	for _, msg := range req.Messages {
		if !msg.Sendable() {
			continue
		}
		body.Messages = append(body.Messages, toWireMessage(msg))
	}

	return body
}

func toWireMessage(msg model.Message) wireMessage {
	wm := wireMessage{
		Role:     string(msg.Role()),
		Content:  msg.Content,
		Thinking: msg.Thinking,
	}

	if msg.IsTool() {
		wm.ToolCallID = msg.ToolCallID
		wm.Name = msg.Name
		wm.ToolName = msg.Name
	}

	for i, tc := range msg.ToolCalls {
		args := tc.Arguments
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			raw = []byte("{}")
		}
		wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: wireFunctionCall{
				Index:     i,
				Name:      tc.Name,
				Arguments: raw,
			},
		})
	}

	return wm
}

// convertTools renders tool definitions as Ollama function declarations.
func convertTools(defs []mcptypes.Tool) []wireTool {
	if len(defs) == 0 {
		return nil
	}

	out := make([]wireTool, 0, len(defs))
	for _, def := range defs {
		params := def.InputSchema
		if params.Type == "" {
			params.Type = "object"
		}
		if params.Properties == nil {
			params.Properties = map[string]any{}
		}
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func toChunk(resp chatResponse) model.Chunk {
	chunk := model.Chunk{
		Model:           resp.Model,
		Content:         resp.Message.Content,
		Thinking:        resp.Message.Thinking,
		Done:            resp.Done,
		DoneReason:      resp.DoneReason,
		PromptEvalCount: resp.PromptEvalCount,
		EvalCount:       resp.EvalCount,
	}

	for _, tc := range resp.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.New().String()
		}
		chunk.ToolCalls = append(chunk.ToolCalls, model.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: ParseArguments(tc.Function.Arguments),
		})
	}

	return chunk
}

// ParseArguments accepts tool-call arguments as a JSON object or as a JSON
// string that contains an object. Anything else yields an empty map.
func ParseArguments(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return args
	}

	if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
		if args == nil {
			args = map[string]any{}
		}
		return args
	}

	var encoded string
	if err := json.Unmarshal([]byte(trimmed), &encoded); err == nil {
		inner := map[string]any{}
		if err := json.Unmarshal([]byte(encoded), &inner); err == nil && inner != nil {
			return inner
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[ollama] unparseable tool arguments: %s", trimmed)
	}
	return map[string]any{}
}
