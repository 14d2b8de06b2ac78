package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"ollmchat/model"
)

type OptionsConfig struct {
	Temperature *float64 `toml:"temperature,omitempty"`
	TopP        *float64 `toml:"top_p,omitempty"`
	TopK        *int     `toml:"top_k,omitempty"`
	NumCtx      *int     `toml:"num_ctx,omitempty"`
	NumPredict  *int     `toml:"num_predict,omitempty"`
	Seed        *int     `toml:"seed,omitempty"`
	Stop        []string `toml:"stop,omitempty"`
}

type OllamaConfig struct {
	Host    string        `toml:"host"`
	Model   string        `toml:"model"`
	APIKey  string        `toml:"api_key,omitempty"`
	Stream  bool          `toml:"stream"`
	Think   bool          `toml:"think"`
	Timeout string        `toml:"timeout,omitempty"`
	Options OptionsConfig `toml:"options"`
}

// PermissionRule is one entry of the policy asker, matched in file order.
type PermissionRule struct {
	Pattern    string `toml:"pattern"`
	Operations string `toml:"operations"`
	Allow      bool   `toml:"allow"`
	Scope      string `toml:"scope,omitempty"`
}

type PermissionsConfig struct {
	File    string           `toml:"file,omitempty"`
	BaseDir string           `toml:"base_dir,omitempty"`
	Mode    string           `toml:"mode"`
	Rules   []PermissionRule `toml:"rules,omitempty"`
}

type ToolsConfig struct {
	Enabled    []string `toml:"enabled"`
	ProjectDir string   `toml:"project_dir,omitempty"`
}

// MCPServer describes a stdio MCP server whose tools are offered to the model.
type MCPServer struct {
	ID      string            `toml:"id"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args,omitempty"`
	Env     map[string]string `toml:"env,omitempty"`
}

type HistoryConfig struct {
	Enabled bool `toml:"enabled"`
}

type Config struct {
	DataDirectory string            `toml:"data_directory"`
	SystemPrompt  string            `toml:"system_prompt,omitempty"`
	Debug         bool              `toml:"debug"`
	MaxToolRounds int               `toml:"max_tool_rounds"`
	Ollama        OllamaConfig      `toml:"ollama"`
	Permissions   PermissionsConfig `toml:"permissions"`
	Tools         ToolsConfig       `toml:"tools"`
	MCPServers    []MCPServer       `toml:"mcp_servers,omitempty"`
	History       HistoryConfig     `toml:"history"`
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// PermissionsFile returns the global permission file, or "" when durable
// grants are disabled.
func (c *Config) PermissionsFile() string {
	if c.Permissions.File == "-" {
		return ""
	}
	if c.Permissions.File != "" {
		return ExpandPath(c.Permissions.File)
	}
	return filepath.Join(c.DataDir(), "permissions.json")
}

// BaseDir is where relative tool paths are resolved. Defaults to the working directory.
func (c *Config) BaseDir() string {
	if c.Permissions.BaseDir != "" {
		return ExpandPath(c.Permissions.BaseDir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (c *Config) ProjectDir() string {
	if c.Tools.ProjectDir != "" {
		return ExpandPath(c.Tools.ProjectDir)
	}
	return c.BaseDir()
}

func (c *Config) Timeout() time.Duration {
	if c.Ollama.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(c.Ollama.Timeout)
	if err != nil || d <= 0 {
		if DebugLog != nil {
			DebugLog.Printf("[config] invalid timeout %q, using %v", c.Ollama.Timeout, DefaultTimeout)
		}
		return DefaultTimeout
	}
	return d
}

// Connection snapshots the backend settings for one request.
func (c *Config) Connection() model.Connection {
	o := c.Ollama.Options
	return model.Connection{
		BaseURL: c.Ollama.Host,
		APIKey:  c.Ollama.APIKey,
		Model:   c.Ollama.Model,
		Stream:  c.Ollama.Stream,
		Think:   c.Ollama.Think,
		Timeout: c.Timeout(),
		Options: model.Options{
			Temperature: o.Temperature,
			TopP:        o.TopP,
			TopK:        o.TopK,
			NumCtx:      o.NumCtx,
			NumPredict:  o.NumPredict,
			Seed:        o.Seed,
			Stop:        o.Stop,
		},
	}
}

func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("OLLMCHAT_HOST"); host != "" {
		c.Ollama.Host = host
	}
	if m := os.Getenv("OLLMCHAT_MODEL"); m != "" {
		c.Ollama.Model = m
	}
	if key := os.Getenv("OLLMCHAT_API_KEY"); key != "" {
		c.Ollama.APIKey = key
	}
	if dataDir := os.Getenv("OLLMCHAT_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if CheckDebug() {
		c.Debug = true
	}
}

func CheckDebug() bool {
	debug := os.Getenv("OLLMCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string, enabled bool) {
	if !enabled && !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: prompts and tool output end up in here
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started ===")
	DebugLog.Printf("Log path: %s", logPath)
}

// Load reads the config file at path (GetConfigFilePath when empty), creating
// it from the template if missing, and applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigFilePath()
		if !FileExists(path) {
			if err := CreateDefaultConfig(path); err != nil {
				return nil, fmt.Errorf("failed to create config: %w", err)
			}
		}
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Ollama.Host == "" {
		return fmt.Errorf("ollama host must not be empty")
	}
	if c.Ollama.Model == "" {
		return fmt.Errorf("ollama model must not be empty")
	}
	switch c.Permissions.Mode {
	case "", "prompt", "deny", "policy":
	default:
		return fmt.Errorf("unknown permissions mode %q (valid: prompt, deny, policy)", c.Permissions.Mode)
	}
	for _, srv := range c.MCPServers {
		if srv.ID == "" || srv.Command == "" {
			return fmt.Errorf("mcp server entries need both id and command")
		}
	}
	return nil
}
