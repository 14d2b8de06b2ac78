package model

import "time"

// Role identifies who a message belongs to. The first four are wire roles; the
// rest only exist inside the client and are never sent to the backend.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"

	RoleUI            Role = "ui"
	RoleContentStream Role = "content-stream"
	RoleThinkStream   Role = "think-stream"
	RoleEndStream     Role = "end-stream"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool,
		RoleUI, RoleContentStream, RoleThinkStream, RoleEndStream:
		return true
	}
	return false
}

// ToolCall is a backend request to invoke a local function.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message is one entry of a conversation.
//
// The role is private: SetRole is the only way to change it and every
// behavioural flag is derived from it, so role and flags cannot disagree.
type Message struct {
	role Role

	Content    string
	Thinking   string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
	Timestamp  time.Time
}

func NewMessage(role Role, content string) Message {
	m := Message{Content: content, Timestamp: time.Now()}
	m.SetRole(role)
	return m
}

// NewToolMessage builds the tool-role reply to call.
func NewToolMessage(call ToolCall, content string) Message {
	m := NewMessage(RoleTool, content)
	m.ToolCallID = call.ID
	m.Name = call.Name
	return m
}

// SetRole assigns the role. Unknown roles fall back to RoleUI so that a
// bogus role can never leak to the backend.
func (m *Message) SetRole(r Role) {
	if !r.Valid() {
		r = RoleUI
	}
	m.role = r
}

func (m Message) Role() Role { return m.role }

func (m Message) IsSystem() bool    { return m.role == RoleSystem }
func (m Message) IsUser() bool      { return m.role == RoleUser }
func (m Message) IsAssistant() bool { return m.role == RoleAssistant }
func (m Message) IsTool() bool      { return m.role == RoleTool }

func (m Message) IsStream() bool {
	switch m.role {
	case RoleContentStream, RoleThinkStream, RoleEndStream:
		return true
	}
	return false
}

// IsHidden is true for internal-only roles.
func (m Message) IsHidden() bool {
	return m.role == RoleUI || m.IsStream()
}

// Sendable reports whether the message goes into a backend request.
func (m Message) Sendable() bool {
	return m.role != "" && !m.IsHidden()
}

// HasToolCalls reports whether an assistant message requested tools.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a copy whose tool call slice can be mutated independently.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return out
}
