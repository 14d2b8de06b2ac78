package tools

import (
	"fmt"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/sahilm/fuzzy"
)

// Registry holds tools in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool without name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Active returns the tools currently offered to the model.
func (r *Registry) Active() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Tool
	for _, name := range r.order {
		if t := r.tools[name]; t.Active() {
			out = append(out, t)
		}
	}
	return out
}

// Definitions are the declarations of the active tools.
func (r *Registry) Definitions() []mcptypes.Tool {
	active := r.Active()
	defs := make([]mcptypes.Tool, 0, len(active))
	for _, t := range active {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Suggest returns the registered name closest to name, or "".
func (r *Registry) Suggest(name string) string {
	names := r.Names()
	if len(names) == 0 || name == "" {
		return ""
	}

	// Typo or abbreviation: "readfile" -> "read_file".
	if matches := fuzzy.Find(name, names); len(matches) > 0 {
		return matches[0].Str
	}

	// Decorated name: "functions.read_file" -> "read_file".
	best, bestScore := "", 0
	for _, candidate := range names {
		m := fuzzy.Find(candidate, []string{name})
		if len(m) > 0 && (best == "" || m[0].Score > bestScore) {
			best, bestScore = candidate, m[0].Score
		}
	}
	return best
}
