package config

import "time"

const (
	DefaultHost    = "http://localhost:11434"
	DefaultModel   = "llama3.1:latest"
	DefaultTimeout = 120 * time.Second
)

var DefaultTools = []string{"read_file", "write_file", "run_command", "web_fetch"}

func DefaultConfig() *Config {
	return &Config{
		DataDirectory: "~/.local/share/ollmchat",
		Ollama: OllamaConfig{
			Host:   DefaultHost,
			Model:  DefaultModel,
			Stream: true,
		},
		Permissions: PermissionsConfig{
			Mode: "prompt",
		},
		Tools: ToolsConfig{
			Enabled: append([]string(nil), DefaultTools...),
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

func GenerateConfigTemplate() string {
	return `# ollmchat configuration
# Location: ~/.config/ollmchat/config.toml
# This file uses TOML format: https://toml.io

# Directory for history, permissions and the debug log
data_directory = "~/.local/share/ollmchat"

# Optional system prompt sent at the start of every conversation
system_prompt = ""

# Write <data_directory>/debug.log (same as OLLMCHAT_DEBUG=1)
debug = false

# Upper bound on tool-call continuations per turn (0 = unlimited)
max_tool_rounds = 0

[ollama]
host = "http://localhost:11434"
model = "llama3.1:latest"
# api_key = ""
stream = true
think = false
timeout = "120s"

[ollama.options]
# temperature = 0.7
# top_p = 0.9
# top_k = 40
# num_ctx = 8192
# num_predict = 1024
# seed = 42

[permissions]
# JSON file holding "always" decisions; "-" disables durable grants
# file = "~/.local/share/ollmchat/permissions.json"
# Relative tool paths resolve against this directory (default: working directory)
# base_dir = ""
# prompt | deny | policy
mode = "prompt"

# [[permissions.rules]]
# pattern = "/home/me/project/*"
# operations = "r"
# allow = true
# scope = "session"

[tools]
enabled = ["read_file", "write_file", "run_command", "web_fetch"]
# project_dir = ""

# [[mcp_servers]]
# id = "fs"
# command = "npx"
# args = ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]

[history]
enabled = true
`
}
