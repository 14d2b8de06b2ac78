// Package mcp exposes tools of MCP servers as permission-gated tools.
package mcp

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"ollmchat/config"
	"ollmchat/tools"
)

const protocolVersion = "2025-06-18"

type server struct {
	id     string
	client *client.Client
	cmd    *exec.Cmd
	tools  []mcptypes.Tool
}

// Manager owns the connections to the configured MCP servers.
type Manager struct {
	mu      sync.RWMutex
	configs []config.MCPServer
	servers map[string]*server
	order   []string
	failed  map[string]error
}

func NewManager(servers []config.MCPServer) *Manager {
	return &Manager{
		configs: servers,
		servers: make(map[string]*server),
		failed:  make(map[string]error),
	}
}

// Start launches every configured server. A server that fails to start is
// recorded in Failed and skipped; it never stops the others.
func (m *Manager) Start(ctx context.Context) {
	for _, cfg := range m.configs {
		if cfg.ID == "" || cfg.Command == "" {
			m.fail(cfg.ID, fmt.Errorf("server needs an id and a command"))
			continue
		}

		c, cmd, err := startProcess(ctx, cfg)
		if err != nil {
			m.fail(cfg.ID, err)
			continue
		}
		if err := m.Connect(ctx, cfg.ID, c, cmd); err != nil {
			stop(c, cmd, cfg.ID)
			m.fail(cfg.ID, err)
		}
	}
}

func (m *Manager) fail(id string, err error) {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[mcp] %s: %v", id, err)
	}
	m.mu.Lock()
	m.failed[id] = err
	m.mu.Unlock()
}

// Connect initializes an already started client and lists its tools. cmd
// may be nil for clients that do not own a process.
func (m *Manager) Connect(ctx context.Context, id string, c *client.Client, cmd *exec.Cmd) error {
	m.mu.RLock()
	_, exists := m.servers[id]
	m.mu.RUnlock()
	if exists {
		return fmt.Errorf("MCP server %s already connected", id)
	}

	_, err := c.Initialize(ctx, mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "ollmchat",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize MCP server %s: %w", id, err)
	}

	result, err := c.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools for %s: %w", id, err)
	}

	m.mu.Lock()
	m.servers[id] = &server{id: id, client: c, cmd: cmd, tools: result.Tools}
	m.order = append(m.order, id)
	delete(m.failed, id)
	m.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[mcp] %s connected with %d tools", id, len(result.Tools))
	}
	return nil
}

// Tools wraps every remote tool as "<server>.<tool>".
func (m *Manager) Tools() []tools.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []tools.Tool
	for _, id := range m.order {
		s := m.servers[id]
		for _, def := range s.tools {
			out = append(out, newRemoteTool(s.id, s.client, def))
		}
	}
	return out
}

// Servers lists connected server ids in connection order.
func (m *Manager) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Failed returns the servers that could not be started, by id.
func (m *Manager) Failed() map[string]error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]error, len(m.failed))
	for k, v := range m.failed {
		out[k] = v
	}
	return out
}

// Close shuts every server down.
func (m *Manager) Close() error {
	m.mu.Lock()
	servers := m.servers
	order := m.order
	m.servers = make(map[string]*server)
	m.order = nil
	m.mu.Unlock()

	for _, id := range order {
		s := servers[id]
		stop(s.client, s.cmd, id)
	}
	return nil
}
