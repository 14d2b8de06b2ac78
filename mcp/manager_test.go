package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"ollmchat/config"
	"ollmchat/permission"
	"ollmchat/tools"
)

func newEchoServer() *server.MCPServer {
	s := server.NewMCPServer("echo-server", "1.0.0")
	s.AddTool(
		mcptypes.NewTool("echo",
			mcptypes.WithDescription("Echo text back"),
			mcptypes.WithString("text", mcptypes.Required(), mcptypes.Description("Text to echo")),
		),
		func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
			text, _ := req.GetArguments()["text"].(string)
			if text == "fail" {
				return mcptypes.NewToolResultError("echo refused"), nil
			}
			return mcptypes.NewToolResultText("echo: " + text), nil
		},
	)
	return s
}

func connectEcho(t *testing.T, m *Manager) {
	t.Helper()
	ctx := context.Background()

	c, err := client.NewInProcessClient(newEchoServer())
	if err != nil {
		t.Fatalf("NewInProcessClient() error = %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Connect(ctx, "local", c, nil); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

func TestManagerTools(t *testing.T) {
	m := NewManager(nil)
	connectEcho(t, m)
	defer m.Close()

	list := m.Tools()
	if len(list) != 1 {
		t.Fatalf("Tools() = %d tools", len(list))
	}
	tool := list[0]
	if tool.Name() != "local.echo" || tool.Description() != "Echo text back" {
		t.Errorf("tool = %s %q", tool.Name(), tool.Description())
	}

	def := tool.Definition()
	if def.Name != "local.echo" || def.InputSchema.Type != "object" {
		t.Errorf("definition = %+v", def)
	}
	if _, ok := def.InputSchema.Properties["text"]; !ok {
		t.Errorf("schema lost properties: %+v", def.InputSchema)
	}

	auth := &recordingAuth{allow: true}
	ctx := context.Background()
	if got := tools.Execute(ctx, tool, tools.Args{"text": "hi"}, auth); got != "echo: hi" {
		t.Errorf("Execute() = %q", got)
	}
	if req := auth.reqs[0]; req.TargetPath != "mcp://local/echo" || req.Operation != permission.Execute {
		t.Errorf("permission request = %+v", req)
	}
	if got := tools.Execute(ctx, tool, tools.Args{"text": "fail"}, auth); got != "ERROR: echo refused" {
		t.Errorf("error result = %q", got)
	}

	denied := tools.Execute(ctx, tool, tools.Args{"text": "hi"}, &recordingAuth{})
	if !strings.HasPrefix(denied, "ERROR: Permission denied: Allow MCP tool local.echo") {
		t.Errorf("denied = %q", denied)
	}
}

func TestManagerDuplicateConnect(t *testing.T) {
	m := NewManager(nil)
	connectEcho(t, m)
	defer m.Close()

	c, _ := client.NewInProcessClient(newEchoServer())
	if err := m.Connect(context.Background(), "local", c, nil); err == nil {
		t.Error("second connect with the same id should fail")
	}
	if got := m.Servers(); len(got) != 1 || got[0] != "local" {
		t.Errorf("Servers() = %v", got)
	}
}

func TestManagerStartFailures(t *testing.T) {
	m := NewManager([]config.MCPServer{
		{ID: "broken"},
		{ID: "missing", Command: "/nonexistent/mcp-server-binary"},
	})
	m.Start(context.Background())
	defer m.Close()

	failed := m.Failed()
	if len(failed) != 2 || failed["broken"] == nil || failed["missing"] == nil {
		t.Errorf("Failed() = %v", failed)
	}
	if len(m.Tools()) != 0 {
		t.Error("failed servers must not contribute tools")
	}
}

type recordingAuth struct {
	allow bool
	reqs  []permission.Request
}

func (r *recordingAuth) Request(_ context.Context, req permission.Request) (bool, error) {
	r.reqs = append(r.reqs, req)
	return r.allow, nil
}

type fakeCaller struct {
	result *mcptypes.CallToolResult
	err    error
	got    mcptypes.CallToolRequest
}

func (f *fakeCaller) CallTool(_ context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
	f.got = req
	return f.result, f.err
}

func TestRemoteToolRun(t *testing.T) {
	def := mcptypes.Tool{Name: "search"}
	tests := []struct {
		name    string
		caller  *fakeCaller
		want    string
		wantErr string
	}{
		{
			name: "text and non-text content",
			caller: &fakeCaller{result: &mcptypes.CallToolResult{Content: []mcptypes.Content{
				mcptypes.NewTextContent("line one"),
				mcptypes.NewImageContent("aGk=", "image/png"),
			}}},
			want: "line one\n",
		},
		{
			name:    "transport error",
			caller:  &fakeCaller{err: errors.New("pipe closed")},
			wantErr: "failed to call srv.search: pipe closed",
		},
		{
			name:    "error result without text",
			caller:  &fakeCaller{result: &mcptypes.CallToolResult{IsError: true}},
			wantErr: "tool reported an error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := newRemoteTool("srv", tt.caller, def)
			got, err := tool.Run(context.Background(), tools.Args{"q": "x"})
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("Run() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(got, tt.want) || !strings.Contains(got, "image/png") {
				t.Errorf("Run() = %q", got)
			}
			if tt.caller.got.Params.Name != "search" {
				t.Errorf("called %q, want the unprefixed name", tt.caller.got.Params.Name)
			}
		})
	}
}
