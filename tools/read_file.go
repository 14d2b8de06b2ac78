package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"ollmchat/permission"
)

const readFileDoc = `Read a UTF-8 text file and return its contents. Long files are truncated;
use start_line and end_line to read a slice.
@param path {string} required Path of the file, relative to the project directory or absolute
@param start_line {integer} optional First line to return, 1-based
@param end_line {integer} optional Last line to return, inclusive`

type ReadFile struct {
	*Base
	env Env
}

type readFileArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func NewReadFile(env Env) *ReadFile {
	return &ReadFile{Base: NewBase("read_file", readFileDoc), env: env}
}

// Prepare asks for read access outside the project directory only.
func (t *ReadFile) Prepare(ctx context.Context, args Args) (*permission.Request, error) {
	var a readFileArgs
	if err := t.Bind(args, &a); err != nil {
		return nil, err
	}

	path := t.env.resolve(a.Path)
	if t.env.inProject(path) {
		return nil, nil
	}
	return &permission.Request{
		TargetPath: path,
		Operation:  permission.Read,
		Question:   fmt.Sprintf("Allow read_file to read %s?", path),
	}, nil
}

func (t *ReadFile) Run(ctx context.Context, args Args) (string, error) {
	var a readFileArgs
	if err := t.Bind(args, &a); err != nil {
		return "", err
	}

	path := t.env.resolve(a.Path)
	Status(ctx, "reading "+path)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", a.Path, err)
	}
	text := string(data)

	if a.StartLine > 0 || a.EndLine > 0 {
		lines := strings.Split(text, "\n")
		start := max(a.StartLine, 1)
		end := a.EndLine
		if end <= 0 || end > len(lines) {
			end = len(lines)
		}
		if start > end {
			return "", fmt.Errorf("start_line %d is past end of file (%d lines)", a.StartLine, len(lines))
		}
		text = strings.Join(lines[start-1:end], "\n")
	}

	if head, cut := Head(text, maxReadFileBytes); cut {
		text = head + "\n[... file truncated ...]"
	}
	return text, nil
}
