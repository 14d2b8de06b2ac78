package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"ollmchat/permission"
	"ollmchat/tools"
)

// caller is the part of the MCP client a remote tool needs.
type caller interface {
	CallTool(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error)
}

// remoteTool is one tool of an MCP server. It asks for execute permission
// on "mcp://<server>/<tool>".
type remoteTool struct {
	server string
	def    mcptypes.Tool
	client caller
	active atomic.Bool
}

func newRemoteTool(server string, c caller, def mcptypes.Tool) *remoteTool {
	t := &remoteTool{server: server, def: def, client: c}
	t.active.Store(true)
	return t
}

func (t *remoteTool) Name() string        { return t.server + "." + t.def.Name }
func (t *remoteTool) Description() string { return t.def.Description }
func (t *remoteTool) Active() bool        { return t.active.Load() }

func (t *remoteTool) SetActive(active bool) { t.active.Store(active) }

// Target is the permission key of the tool.
func (t *remoteTool) Target() string {
	return "mcp://" + t.server + "/" + t.def.Name
}

func (t *remoteTool) Definition() mcptypes.Tool {
	def := t.def
	def.Name = t.Name()
	if def.InputSchema.Type == "" {
		def.InputSchema.Type = "object"
	}
	return def
}

func (t *remoteTool) Prepare(ctx context.Context, args tools.Args) (*permission.Request, error) {
	preview, _ := json.Marshal(args)
	return &permission.Request{
		TargetPath: t.Target(),
		Operation:  permission.Execute,
		Question:   fmt.Sprintf("Allow MCP tool %s to run with %s?", t.Name(), preview),
	}, nil
}

func (t *remoteTool) Run(ctx context.Context, args tools.Args) (string, error) {
	tools.Status(ctx, "calling "+t.Name())

	result, err := t.client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      t.def.Name,
			Arguments: map[string]any(args),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call %s: %w", t.Name(), err)
	}

	text := flatten(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", errors.New(text)
	}
	return text, nil
}

// flatten joins text content; other content kinds are JSON encoded.
func flatten(content []mcptypes.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch c := item.(type) {
		case mcptypes.TextContent:
			parts = append(parts, c.Text)
		case *mcptypes.TextContent:
			parts = append(parts, c.Text)
		default:
			data, err := json.Marshal(item)
			if err != nil {
				parts = append(parts, fmt.Sprintf("%v", item))
				continue
			}
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, "\n")
}
