package tools

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"ollmchat/permission"
)

// Output limits for built-in tools.
const (
	maxReadFileBytes   = 200_000
	maxToolOutputBytes = 16_000
	maxFetchBytes      = 100_000
)

// Env is what the built-in tools need to know about their surroundings.
type Env struct {
	// ProjectDir is where reads need no permission and where relative
	// paths are resolved.
	ProjectDir string
}

func (e Env) resolve(path string) string {
	return permission.NormalizePath(e.ProjectDir, path)
}

// inProject reports whether the normalized path lies inside the project.
func (e Env) inProject(path string) bool {
	if e.ProjectDir == "" {
		return false
	}
	root := permission.NormalizePath("", e.ProjectDir)
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Builtins returns the named built-in tools in the given order.
func Builtins(names []string, env Env) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		switch name {
		case "read_file":
			out = append(out, NewReadFile(env))
		case "write_file":
			out = append(out, NewWriteFile(env))
		case "run_command":
			out = append(out, NewRunCommand(env))
		case "web_fetch":
			out = append(out, NewWebFetch(nil))
		default:
			return nil, fmt.Errorf("unknown built-in tool %q", name)
		}
	}
	return out, nil
}

// Tail keeps the last n bytes of s.
func Tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "[... output truncated ...]\n" + s[i:]
}

// Head returns at most the first n bytes of s, cut on a rune boundary, and
// whether anything was dropped.
func Head(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	i := n
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i], true
}
