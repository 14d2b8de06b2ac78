package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"ollmchat/config"
)

// closeTimeout bounds how long Close waits for a server to exit cleanly.
const closeTimeout = time.Second

// startProcess launches a stdio MCP server. The returned command is the
// child process, kept so it can be killed if the client does not close.
func startProcess(ctx context.Context, server config.MCPServer) (*client.Client, *exec.Cmd, error) {
	var captured *exec.Cmd

	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		captured = cmd
		return cmd, nil
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[mcp] starting %s: %s %v", server.ID, server.Command, server.Args)
	}

	c, err := client.NewStdioMCPClientWithOptions(
		config.ExpandPath(server.Command),
		serverEnv(server.Env),
		server.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start MCP server %s: %w", server.ID, err)
	}

	if captured != nil && captured.Process != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[mcp] %s running as pid %d", server.ID, captured.Process.Pid)
	}
	return c, captured, nil
}

// serverEnv is the current environment plus the configured overrides,
// in a stable order.
func serverEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, os.ExpandEnv(extra[k])))
	}
	return env
}

// stop closes the client, then kills the process if it is still around.
func stop(c *client.Client, cmd *exec.Cmd, id string) {
	if c != nil {
		done := make(chan error, 1)
		go func() { done <- c.Close() }()

		select {
		case <-done:
		case <-time.After(closeTimeout):
			if config.DebugLog != nil {
				config.DebugLog.Printf("[mcp] %s did not close within %s", id, closeTimeout)
			}
		}
	}

	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[mcp] kill %s: %v", id, err)
		}
	}
}
