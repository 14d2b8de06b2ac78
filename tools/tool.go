// Package tools defines the tool contract, the doc-block schema DSL and the
// built-in tools offered to the model.
package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mattn/go-runewidth"

	"ollmchat/config"
	"ollmchat/permission"
)

// Tool is a function the model may call.
//
// Prepare inspects the arguments and returns the permission request the call
// needs, or nil when no check is required. Run performs the side effect and
// is only reached once permission is settled.
type Tool interface {
	Name() string
	Description() string
	Definition() mcptypes.Tool
	Active() bool
	Prepare(ctx context.Context, args Args) (*permission.Request, error)
	Run(ctx context.Context, args Args) (string, error)
}

// Authorizer answers permission requests. *permission.Authority implements it.
type Authorizer interface {
	Request(ctx context.Context, req permission.Request) (bool, error)
}

// validator is implemented by tools with a local schema.
type validator interface {
	Validate(args Args) error
}

// Base carries identity, schema and the active flag. Embed it in tools.
type Base struct {
	name   string
	schema *Schema
	active atomic.Bool
}

// NewBase parses doc once; it panics on an invalid block since tool docs
// are static.
func NewBase(name, doc string) *Base {
	b := &Base{name: name, schema: MustParseDoc(doc)}
	b.active.Store(true)
	return b
}

func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.schema.Description }
func (b *Base) Schema() *Schema     { return b.schema }

func (b *Base) Definition() mcptypes.Tool {
	return b.schema.Definition(b.name, "")
}

// Active reports whether the tool is offered to the model. Inactive tools
// stay registered.
func (b *Base) Active() bool { return b.active.Load() }

func (b *Base) SetActive(active bool) { b.active.Store(active) }

func (b *Base) Validate(args Args) error {
	return b.schema.Validate(args)
}

// Bind decodes args into dst using the tool's schema.
func (b *Base) Bind(args Args, dst any) error {
	return Bind(b.schema, args, dst)
}

// ErrorPrefix starts every failed tool result.
const ErrorPrefix = "ERROR: "

// Execute runs one tool call and always returns text for the conversation.
// Failures, panics and permission denials come back as "ERROR: ..." strings.
func Execute(ctx context.Context, t Tool, args Args, auth Authorizer) (result string) {
	defer func() {
		if r := recover(); r != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[tools] %s panicked: %v\n%s", t.Name(), r, debug.Stack())
			}
			result = ErrorPrefix + fmt.Sprint(r)
		}
	}()

	if args == nil {
		args = Args{}
	}

	if v, ok := t.(validator); ok {
		if err := v.Validate(args); err != nil {
			return fail(t, err)
		}
	}

	req, err := t.Prepare(ctx, args)
	if err != nil {
		return fail(t, err)
	}

	if req != nil {
		if req.ToolName == "" {
			req.ToolName = t.Name()
		}
		if req.Question == "" {
			req.Question = fmt.Sprintf("Allow %s to %s %s?", req.ToolName, req.Operation.Verb(), req.TargetPath)
		}

		allowed := false
		if auth != nil {
			allowed, err = auth.Request(ctx, *req)
			if err != nil && config.DebugLog != nil {
				config.DebugLog.Printf("[tools] permission request for %s failed: %v", t.Name(), err)
			}
		}
		if !allowed {
			return ErrorPrefix + "Permission denied: " + req.Question
		}
	}

	out, err := t.Run(ctx, args)
	if err != nil {
		return fail(t, err)
	}
	return out
}

func fail(t Tool, err error) string {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[tools] %s failed: %v", t.Name(), err)
	}
	return ErrorPrefix + err.Error()
}

type statusKey struct{}

// WithStatus attaches a progress callback for tools running under ctx.
func WithStatus(ctx context.Context, fn func(string)) context.Context {
	return context.WithValue(ctx, statusKey{}, fn)
}

// statusWidth is the display width status lines are cut to.
const statusWidth = 120

// Status reports progress such as "$ go test" to the callback in ctx, if
// any. Only the first line is kept.
func Status(ctx context.Context, msg string) {
	fn, _ := ctx.Value(statusKey{}).(func(string))
	if fn == nil {
		return
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i] + " ..."
	}
	fn(runewidth.Truncate(msg, statusWidth, "..."))
}
