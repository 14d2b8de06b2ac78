package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"ollmchat/config"
	"ollmchat/model"
)

// maxErrorBody bounds how much of a failed response is read for the message.
const maxErrorBody = 64 * 1024

type Client struct {
	api        *api.Client
	http       *http.Client
	stream     *http.Client
	baseURL    string
	pingWindow time.Duration
}

// NewClient builds a client for conn. The connection timeout bounds a whole
// non-streaming exchange; for streaming requests it only bounds the wait for
// response headers.
func NewClient(conn model.Connection) (*Client, error) {
	baseURL := conn.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultHost
	}
	baseURL = strings.TrimRight(baseURL, "/")

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL: %q", baseURL)
	}

	timeout := conn.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	streamTransport := base.Clone()
	streamTransport.ResponseHeaderTimeout = timeout

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &authTransport{key: conn.APIKey, next: base},
	}
	streamClient := &http.Client{
		Transport: &authTransport{key: conn.APIKey, next: streamTransport},
	}

	return &Client{
		api:        api.NewClient(parsedURL, httpClient),
		http:       httpClient,
		stream:     streamClient,
		baseURL:    baseURL,
		pingWindow: 5 * time.Second,
	}, nil
}

// authTransport adds the bearer token for hosted Ollama endpoints.
type authTransport struct {
	key  string
	next http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.key == "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.key)
	return t.next.RoundTrip(req)
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat performs a non-streaming exchange. The response is always marked
// done; the backend's own flag is not consulted.
func (c *Client) Chat(ctx context.Context, req *model.ChatRequest) (model.Chunk, error) {
	body := buildRequest(req)
	body.Stream = false

	resp, err := c.post(ctx, c.http, body)
	if err != nil {
		return model.Chunk{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Chunk{}, &StatusError{Kind: KindConnection, Message: "failed to read response", Cause: err}
	}

	var out chatResponse
	if err := json.Unmarshal(bytes.TrimSpace(data), &out); err != nil {
		return model.Chunk{}, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if out.Error != "" {
		return model.Chunk{}, &StatusError{Kind: KindServerError, Message: out.Error}
	}

	chunk := toChunk(out)
	chunk.Done = true
	return chunk, nil
}

// ChatStream performs a streaming exchange, calling fn for every decoded
// chunk in arrival order. Cancelling ctx ends the stream without error.
func (c *Client) ChatStream(ctx context.Context, req *model.ChatRequest, fn func(model.Chunk) error) error {
	body := buildRequest(req)
	body.Stream = true

	resp, err := c.post(ctx, c.stream, body)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer resp.Body.Close()

	return Decode(ctx, resp.Body, func(r chatResponse) error {
		if r.Error != "" {
			return &StatusError{Kind: KindServerError, Message: r.Error}
		}
		return fn(toChunk(r))
	})
}

// post sends body to /api/chat and classifies non-2xx statuses before any
// decoding happens.
func (c *Client) post(ctx context.Context, hc *http.Client, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if body.Stream {
		httpReq.Header.Set("Accept", "application/x-ndjson")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[ollama] POST /api/chat model=%s messages=%d tools=%d stream=%v",
			body.Model, len(body.Messages), len(body.Tools), body.Stream)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[ollama] request failed: %v", err)
		}
		return nil, &StatusError{Kind: KindConnection, Message: "cannot reach " + c.baseURL, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := statusError(resp.StatusCode, data)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[ollama] %v", serr)
		}
		return nil, serr
	}

	return resp, nil
}

type ModelInfo struct {
	Name     string
	Size     int64
	Modified time.Time
	Tools    bool
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", classifyAPIError(err))
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = ModelInfo{
			Name:     m.Name,
			Size:     m.Size,
			Modified: m.ModifiedAt,
			Tools:    ModelSupportsToolCalling(m.Name),
		}
	}

	return models, nil
}

// Ping checks that the server answers within a short window.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.pingWindow)
	defer cancel()

	if _, err := c.api.List(ctx); err != nil {
		return classifyAPIError(err)
	}
	return nil
}

// classifyAPIError maps errors from the ollama api package onto StatusError.
func classifyAPIError(err error) error {
	if se, ok := err.(api.StatusError); ok {
		return &StatusError{Kind: Classify(se.StatusCode), StatusCode: se.StatusCode, Message: se.ErrorMessage}
	}
	if se, ok := err.(*api.StatusError); ok {
		return &StatusError{Kind: Classify(se.StatusCode), StatusCode: se.StatusCode, Message: se.ErrorMessage}
	}
	return &StatusError{Kind: KindConnection, Message: KindConnection.String(), Cause: err}
}

// toolCallingModels tracks which model families handle tool calls reliably.
var toolCallingModels = map[string]bool{
	"qwen":      true,
	"llama3.1":  true,
	"llama3.2":  true,
	"llama3.3":  true,
	"mistral":   true,
	"command-r": true,
	"nemotron":  true,
	"granite3":  true,
	"gpt-oss":   true,

	"llama3-gradient": false,
	"llama3":          false,
	"phi":             false,
	"gemma":           false,
	"codellama":       false,
	"deepseek":        false,
}

// Most specific prefixes first: "llama3.2" must match before "llama3".
var orderedPrefixes = []string{
	"llama3.3", "llama3.2", "llama3.1",
	"llama3-gradient",
	"command-r", "qwen", "mistral", "nemotron", "granite3", "gpt-oss",
	"codellama",
	"llama3",
	"deepseek", "phi", "gemma",
}

// ModelSupportsToolCalling reports whether the named model is known to
// support the tools field. Unknown models report false.
func ModelSupportsToolCalling(name string) bool {
	name = strings.ToLower(name)
	for _, prefix := range orderedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return toolCallingModels[prefix]
		}
	}
	return false
}
