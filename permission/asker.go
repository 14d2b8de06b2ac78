package permission

import (
	"context"
	"path/filepath"
	"strings"

	"ollmchat/config"
)

// Request describes one side effect a tool wants to perform.
type Request struct {
	ToolName   string
	TargetPath string
	Operation  Operation
	Question   string
}

// Scope says how long a decision is remembered.
type Scope int

const (
	Once Scope = iota
	Session
	Always
)

func (s Scope) String() string {
	switch s {
	case Session:
		return "session"
	case Always:
		return "always"
	default:
		return "once"
	}
}

// ParseScope maps "once", "session" and "always"; anything else is Once.
func ParseScope(s string) Scope {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "session":
		return Session
	case "always":
		return Always
	default:
		return Once
	}
}

// ParseOperations reads letters such as "rw" or "x". Unknown letters are
// ignored.
func ParseOperations(s string) Operation {
	var op Operation
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'r':
			op |= Read
		case 'w':
			op |= Write
		case 'x':
			op |= Execute
		}
	}
	return op
}

// Decision is the user's (or policy's) answer to a Request.
type Decision struct {
	Allow bool
	Scope Scope
}

// Asker is consulted when neither store has a definitive answer.
type Asker interface {
	Ask(ctx context.Context, req Request) (Decision, error)
}

// AskerFunc adapts a function to Asker.
type AskerFunc func(ctx context.Context, req Request) (Decision, error)

func (f AskerFunc) Ask(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// DenyAsker refuses everything it is asked and logs the request. Used for
// non-interactive runs.
type DenyAsker struct{}

func (DenyAsker) Ask(_ context.Context, req Request) (Decision, error) {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[permission] denied without prompt: %s %s %s", req.ToolName, req.Operation, req.TargetPath)
	}
	return Decision{Allow: false, Scope: Once}, nil
}

// AllowAsker grants everything once.
type AllowAsker struct{}

func (AllowAsker) Ask(context.Context, Request) (Decision, error) {
	return Decision{Allow: true, Scope: Once}, nil
}

// Rule matches a target path and a set of operations.
//
// Pattern is a filepath.Match glob. A pattern ending in "/**" also matches
// everything below the directory. An empty Operations matches any request.
type Rule struct {
	Pattern    string
	Operations Operation
	Allow      bool
	Scope      Scope
}

// Matches reports whether the rule applies to req.
func (r Rule) Matches(req Request) bool {
	if r.Operations != 0 && req.Operation&^r.Operations != 0 {
		return false
	}
	return matchPattern(r.Pattern, req.TargetPath)
}

func matchPattern(pattern, target string) bool {
	if pattern == "" || pattern == "*" || pattern == "**" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		if target == prefix || strings.HasPrefix(target, prefix+"/") {
			return true
		}
	}
	ok, err := filepath.Match(pattern, target)
	return err == nil && ok
}

// PolicyAsker answers from an ordered rule list. The first matching rule
// wins; when none matches the request goes to Fallback, or is denied if
// there is none.
type PolicyAsker struct {
	Rules    []Rule
	Fallback Asker
}

// RulesFromConfig converts configured rules, expanding "~" in path patterns.
func RulesFromConfig(rules []config.PermissionRule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		pattern := r.Pattern
		if !IsURL(pattern) {
			pattern = config.ExpandPath(pattern)
		}
		out = append(out, Rule{
			Pattern:    pattern,
			Operations: ParseOperations(r.Operations),
			Allow:      r.Allow,
			Scope:      ParseScope(r.Scope),
		})
	}
	return out
}

func (p *PolicyAsker) Ask(ctx context.Context, req Request) (Decision, error) {
	for i, rule := range p.Rules {
		if rule.Matches(req) {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[permission] rule %d (%s) allow=%v for %s", i, rule.Pattern, rule.Allow, req.TargetPath)
			}
			return Decision{Allow: rule.Allow, Scope: rule.Scope}, nil
		}
	}
	if p.Fallback != nil {
		return p.Fallback.Ask(ctx, req)
	}
	return DenyAsker{}.Ask(ctx, req)
}
