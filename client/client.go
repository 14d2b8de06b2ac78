// Package client assembles transport, tools, permissions, events and history
// into the object front ends talk to.
package client

import (
	"context"
	"fmt"
	"sync"

	"ollmchat/chat"
	"ollmchat/config"
	"ollmchat/mcp"
	"ollmchat/model"
	"ollmchat/ollama"
	"ollmchat/permission"
	"ollmchat/storage"
	"ollmchat/tools"
)

type options struct {
	asker      permission.Asker
	transport  chat.Transport
	history    *storage.History
	historySet bool
	tools      []tools.Tool
}

type Option func(*options)

// WithAsker sets who answers permission questions in prompt mode, and the
// fallback for unmatched requests in policy mode.
func WithAsker(a permission.Asker) Option {
	return func(o *options) { o.asker = a }
}

// WithTransport replaces the HTTP backend, mostly for tests.
func WithTransport(t chat.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithHistory uses h instead of opening <data>/history.db. nil disables
// history. The caller keeps ownership of h.
func WithHistory(h *storage.History) Option {
	return func(o *options) {
		o.history = h
		o.historySet = true
	}
}

// WithTools registers extra tools after the built-ins.
func WithTools(list ...tools.Tool) Option {
	return func(o *options) { o.tools = append(o.tools, list...) }
}

// Client is one chat session: a conversation plus everything it needs.
type Client struct {
	cfg       *config.Config
	backend   *ollama.Client
	registry  *tools.Registry
	authority *permission.Authority
	bus       *chat.Bus
	engine    *chat.Engine
	mcp       *mcp.Manager

	history     *storage.History
	ownsHistory bool

	mu      sync.Mutex
	conn    model.Connection
	turn    *chat.Turn
	session *storage.Session
}

func New(cfg *config.Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	conn := cfg.Connection()
	backend, err := ollama.NewClient(conn)
	if err != nil {
		return nil, err
	}

	store := permission.NewStore(cfg.PermissionsFile())
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	authority := permission.NewAuthority(store, askerFor(cfg, o.asker), cfg.BaseDir())

	c := &Client{
		cfg:       cfg,
		backend:   backend,
		registry:  tools.NewRegistry(),
		authority: authority,
		bus:       chat.NewBus(),
		conn:      conn,
	}

	builtins, err := tools.Builtins(cfg.Tools.Enabled, tools.Env{ProjectDir: cfg.ProjectDir()})
	if err != nil {
		return nil, err
	}
	if err := c.register(append(builtins, o.tools...)); err != nil {
		return nil, err
	}

	if len(cfg.MCPServers) > 0 {
		c.mcp = mcp.NewManager(cfg.MCPServers)
		c.mcp.Start(context.Background())
		if err := c.register(c.mcp.Tools()); err != nil {
			c.mcp.Close()
			return nil, err
		}
	}

	switch {
	case o.historySet:
		c.history = o.history
	case cfg.History.Enabled:
		h, err := storage.Open(cfg.DataDir())
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		c.history = h
		c.ownsHistory = true
	}

	var transport chat.Transport = backend
	if o.transport != nil {
		transport = o.transport
	}
	c.engine = &chat.Engine{
		Transport:     transport,
		Registry:      c.registry,
		Authority:     authority,
		Bus:           c.bus,
		MaxToolRounds: cfg.MaxToolRounds,
	}

	if !ollama.ModelSupportsToolCalling(conn.Model) && config.DebugLog != nil {
		config.DebugLog.Printf("[client] model %s is not known to support tool calling", conn.Model)
	}
	return c, nil
}

// askerFor picks the permission strategy for the configured mode.
func askerFor(cfg *config.Config, interactive permission.Asker) permission.Asker {
	switch cfg.Permissions.Mode {
	case "deny":
		return permission.DenyAsker{}
	case "policy":
		return &permission.PolicyAsker{
			Rules:    permission.RulesFromConfig(cfg.Permissions.Rules),
			Fallback: interactive,
		}
	default:
		if interactive == nil {
			return permission.DenyAsker{}
		}
		return interactive
	}
}

func (c *Client) register(list []tools.Tool) error {
	for _, t := range list {
		if err := c.registry.Register(t); err != nil {
			return fmt.Errorf("failed to register tool: %w", err)
		}
	}
	return nil
}

// Chat starts a new conversation with text as the first user message.
func (c *Client) Chat(ctx context.Context, text string) (*model.StreamingResponse, error) {
	c.mu.Lock()
	turn := c.engine.NewTurn(c.conn, c.cfg.SystemPrompt, text)
	c.turn = turn
	c.session = &storage.Session{Model: c.conn.Model, SystemPrompt: c.cfg.SystemPrompt, Name: sessionName(text)}
	c.mu.Unlock()

	resp, err := turn.Execute(ctx)
	c.save(ctx, turn)
	return resp, err
}

// Reply continues the current conversation, or starts one if there is none.
func (c *Client) Reply(ctx context.Context, text string) (*model.StreamingResponse, error) {
	c.mu.Lock()
	turn := c.turn
	conn := c.conn
	c.mu.Unlock()

	if turn == nil {
		return c.Chat(ctx, text)
	}
	turn.SetConnection(conn)
	resp, err := turn.Reply(ctx, text)
	c.save(ctx, turn)
	return resp, err
}

// Resume loads a saved conversation; the next Reply continues it.
func (c *Client) Resume(ctx context.Context, id string) error {
	if c.history == nil {
		return fmt.Errorf("history is disabled")
	}
	s, err := c.history.Load(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.turn = c.engine.ResumeTurn(c.conn, s.Messages)
	c.session = s
	return nil
}

// save writes the conversation to history. Failures are logged only.
func (c *Client) save(ctx context.Context, turn *chat.Turn) {
	if c.history == nil {
		return
	}
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return
	}

	s.Model = turn.Connection().Model
	s.Messages = turn.Transcript()
	if err := c.history.Save(context.WithoutCancel(ctx), s); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[client] failed to save session: %v", err)
	}
}

func sessionName(text string) string {
	const max = 60
	r := []rune(text)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return text
}

// Messages is the current conversation, latest answer included.
func (c *Client) Messages() []model.Message {
	c.mu.Lock()
	turn := c.turn
	c.mu.Unlock()
	if turn == nil {
		return nil
	}
	return turn.Transcript()
}

func (c *Client) Subscribe(t chat.EventType, fn func(chat.Event)) func() {
	return c.bus.Subscribe(t, fn)
}

func (c *Client) Registry() *tools.Registry        { return c.registry }
func (c *Client) Authority() *permission.Authority { return c.authority }
func (c *Client) History() *storage.History        { return c.history }
func (c *Client) Backend() *ollama.Client          { return c.backend }
func (c *Client) MCP() *mcp.Manager                { return c.mcp }

// Connection returns the settings the next request will use.
func (c *Client) Connection() model.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) SetModel(name string) {
	c.mu.Lock()
	c.conn.Model = name
	c.mu.Unlock()
}

func (c *Client) SetStream(stream bool) {
	c.mu.Lock()
	c.conn.Stream = stream
	c.mu.Unlock()
}

func (c *Client) SetThink(think bool) {
	c.mu.Lock()
	c.conn.Think = think
	c.mu.Unlock()
}

func (c *Client) SetOptions(opts model.Options) {
	c.mu.Lock()
	c.conn.Options = opts
	c.mu.Unlock()
}

func (c *Client) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return c.backend.ListModels(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}

// SessionID is the history id of the current conversation, or "" before
// the first save.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

// Close stops MCP servers and closes history opened by New.
func (c *Client) Close() error {
	var firstErr error
	if c.mcp != nil {
		if err := c.mcp.Close(); err != nil {
			firstErr = err
		}
	}
	if c.history != nil && c.ownsHistory {
		if err := c.history.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
