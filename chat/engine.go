// Package chat drives a conversation with the backend: it sends turns,
// folds streamed chunks, and runs the tool-call continuation loop.
package chat

import (
	"context"

	"ollmchat/model"
	"ollmchat/tools"
)

// Transport sends one request to the backend. *ollama.Client implements it.
//
// ChatStream must deliver chunks in arrival order and return nil when ctx is
// cancelled mid-stream.
type Transport interface {
	Chat(ctx context.Context, req *model.ChatRequest) (model.Chunk, error)
	ChatStream(ctx context.Context, req *model.ChatRequest, fn func(model.Chunk) error) error
}

// Engine holds what every turn shares.
type Engine struct {
	Transport Transport
	Registry  *tools.Registry
	Authority tools.Authorizer
	Bus       *Bus

	// MaxToolRounds caps tool rounds per Execute. Zero means no cap; the
	// loop then ends only when a continuation carries content or no tool
	// calls.
	MaxToolRounds int
}

// NewTurn starts a conversation. The system prompt, if any, comes first and
// the user's text last.
func (e *Engine) NewTurn(conn model.Connection, system, text string) *Turn {
	t := &Turn{engine: e, conn: conn}
	if system != "" {
		t.messages = append(t.messages, model.NewMessage(model.RoleSystem, system))
	}
	t.messages = append(t.messages, model.NewMessage(model.RoleUser, text))
	return t
}

// ResumeTurn continues a conversation loaded from history. The next call
// should be Reply.
func (e *Engine) ResumeTurn(conn model.Connection, messages []model.Message) *Turn {
	t := &Turn{engine: e, conn: conn}
	for _, m := range messages {
		t.messages = append(t.messages, m.Clone())
	}
	return t
}

func (e *Engine) publish(ev Event) {
	if e.Bus != nil {
		e.Bus.Publish(ev)
	}
}
