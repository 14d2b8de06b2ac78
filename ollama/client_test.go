package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"ollmchat/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(model.Connection{BaseURL: srv.URL, APIKey: "secret", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func testRequest(stream bool) *model.ChatRequest {
	return &model.ChatRequest{
		Model: "llama3.1",
		Messages: []model.Message{
			model.NewMessage(model.RoleSystem, "be brief"),
			model.NewMessage(model.RoleUI, "internal note"),
			model.NewMessage(model.RoleUser, "hi"),
		},
		Stream: stream,
	}
}

func TestChatStream(t *testing.T) {
	var body chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","eval_count":7}`)
	})

	resp := model.NewStreamingResponse()
	err := c.ChatStream(context.Background(), testRequest(true), func(ch model.Chunk) error {
		resp.Add(ch)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}

	if resp.Content() != "Hello" || !resp.Done() || resp.EvalCount != 7 {
		t.Errorf("content=%q done=%v eval=%d", resp.Content(), resp.Done(), resp.EvalCount)
	}
	if !body.Stream || body.Model != "llama3.1" {
		t.Errorf("request body = %+v", body)
	}
	if len(body.Messages) != 2 {
		t.Errorf("sent %d messages, hidden ones must be left out", len(body.Messages))
	}
}

func TestChatForcesDone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Stream {
			t.Error("non-streaming request sent stream=true")
		}
		fmt.Fprint(w, `{"model":"m","message":{"role":"assistant","content":"whole"},"done":false}`)
	})

	chunk, err := c.Chat(context.Background(), testRequest(false))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !chunk.Done || chunk.Content != "whole" {
		t.Errorf("chunk = %+v", chunk)
	}
}

func TestChatToolCalls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"","tool_calls":[`+
			`{"function":{"name":"read_file","arguments":{"path":"a.txt"}}},`+
			`{"id":"call_2","function":{"name":"run_command","arguments":"{\"command\":\"ls\"}"}}`+
			`]},"done":true}`)
	})

	chunk, err := c.Chat(context.Background(), testRequest(false))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(chunk.ToolCalls) != 2 {
		t.Fatalf("tool calls = %+v", chunk.ToolCalls)
	}

	first, second := chunk.ToolCalls[0], chunk.ToolCalls[1]
	if !strings.HasPrefix(first.ID, "call_") || first.Arguments["path"] != "a.txt" {
		t.Errorf("first call = %+v", first)
	}
	if second.ID != "call_2" || second.Arguments["command"] != "ls" {
		t.Errorf("second call = %+v", second)
	}
}

func TestChatStatusErrors(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{http.StatusBadRequest, `{"error":"invalid options"}`, KindBadRequest, "invalid options"},
		{http.StatusUnauthorized, `{"error":"unauthorized"}`, KindUnauthorized, "unauthorized"},
		{http.StatusForbidden, `forbidden`, KindUnauthorized, "forbidden"},
		{http.StatusNotFound, `{"error":"model 'x' not found"}`, KindNotFound, "model 'x' not found"},
		{http.StatusInternalServerError, `{"error":"boom"}`, KindServerError, "boom"},
		{http.StatusTeapot, ``, KindOther, ""},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			for _, stream := range []bool{false, true} {
				var err error
				if stream {
					err = c.ChatStream(context.Background(), testRequest(true), func(model.Chunk) error {
						t.Error("no chunk may be decoded from an error response")
						return nil
					})
				} else {
					_, err = c.Chat(context.Background(), testRequest(false))
				}

				var se *StatusError
				if !errors.As(err, &se) {
					t.Fatalf("stream=%v: error = %v, want *StatusError", stream, err)
				}
				if se.Kind != tt.kind || se.StatusCode != tt.status || se.Message != tt.message {
					t.Errorf("stream=%v: got %+v", stream, se)
				}
			}
		})
	}
}

func TestStreamErrorObject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"par"},"done":false}`)
		fmt.Fprintln(w, `{"error":"model crashed"}`)
	})

	err := c.ChatStream(context.Background(), testRequest(true), func(model.Chunk) error { return nil })
	var se *StatusError
	if !errors.As(err, &se) || se.Kind != KindServerError || se.Message != "model crashed" {
		t.Errorf("error = %v", err)
	}
}

func TestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(model.Connection{BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Chat(context.Background(), testRequest(false))
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("error = %v, want ErrNotRunning", err)
	}
}

func TestChatStreamCancelled(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"first"},"done":false}`)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	err := c.ChatStream(ctx, testRequest(true), func(ch model.Chunk) error {
		got = append(got, ch.Content)
		cancel()
		return nil
	})
	if err != nil {
		t.Errorf("ChatStream() error = %v, want nil after cancel", err)
	}
	if len(got) != 1 || got[0] != "first" {
		t.Errorf("chunks = %q", got)
	}
}

func TestBuildRequest(t *testing.T) {
	call := model.ToolCall{ID: "c1", Name: "read_file", Arguments: map[string]any{"path": "x"}}
	assistant := model.NewMessage(model.RoleAssistant, "")
	assistant.ToolCalls = []model.ToolCall{call}

	req := &model.ChatRequest{
		Model: "m",
		Messages: []model.Message{
			assistant,
			model.NewToolMessage(call, "contents"),
			model.NewMessage(model.RoleContentStream, "delta"),
		},
		Tools: []mcptypes.Tool{{
			Name:        "read_file",
			Description: "Read a file",
			InputSchema: mcptypes.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{"path": map[string]any{"type": "string"}},
				Required:   []string{"path"},
			},
		}},
		Think:   true,
		Options: model.Options{Temperature: model.Float(0.2)},
	}

	body := buildRequest(req)
	if len(body.Messages) != 2 {
		t.Fatalf("messages = %+v", body.Messages)
	}
	if tc := body.Messages[0].ToolCalls; len(tc) != 1 || tc[0].ID != "c1" || string(tc[0].Function.Arguments) != `{"path":"x"}` {
		t.Errorf("assistant tool calls = %+v", tc)
	}
	if m := body.Messages[1]; m.Role != "tool" || m.ToolCallID != "c1" || m.Name != "read_file" || m.ToolName != "read_file" {
		t.Errorf("tool message = %+v", m)
	}
	if body.Think == nil || !*body.Think {
		t.Error("think flag not set")
	}
	if body.Options["temperature"] != 0.2 {
		t.Errorf("options = %v", body.Options)
	}
	if len(body.Tools) != 1 || body.Tools[0].Type != "function" || body.Tools[0].Function.Parameters.Required[0] != "path" {
		t.Errorf("tools = %+v", body.Tools)
	}
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`{"a":1,"b":"x"}`, 2},
		{`"{\"a\":1}"`, 1},
		{`""`, 0},
		{`null`, 0},
		{``, 0},
		{`[1,2]`, 0},
		{`"not json"`, 0},
	}
	for _, tt := range tests {
		got := ParseArguments(json.RawMessage(tt.raw))
		if got == nil || len(got) != tt.want {
			t.Errorf("ParseArguments(%s) = %v, want %d keys", tt.raw, got, tt.want)
		}
	}
}

func TestModelSupportsToolCalling(t *testing.T) {
	tests := map[string]bool{
		"llama3.1:latest":   true,
		"llama3.2:3b":       true,
		"llama3:8b":         false,
		"qwen2.5-coder:7b":  true,
		"codellama:13b":     false,
		"some-custom-model": false,
	}
	for name, want := range tests {
		if got := ModelSupportsToolCalling(name); got != want {
			t.Errorf("ModelSupportsToolCalling(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient(model.Connection{BaseURL: "localhost"}); err == nil {
		t.Error("expected error for URL without scheme")
	}
}
