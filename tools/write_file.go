package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ollmchat/permission"
)

const writeFileDoc = `Write UTF-8 text to a file, replacing it if it exists.
@param path {string} required Path of the file, relative to the project directory or absolute
@param content {string} required Full new contents of the file
@param create_dirs {boolean} optional Create missing parent directories`

type WriteFile struct {
	*Base
	env Env
}

type writeFileArgs struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	CreateDirs bool   `json:"create_dirs"`
}

func NewWriteFile(env Env) *WriteFile {
	return &WriteFile{Base: NewBase("write_file", writeFileDoc), env: env}
}

func (t *WriteFile) Prepare(ctx context.Context, args Args) (*permission.Request, error) {
	var a writeFileArgs
	if err := t.Bind(args, &a); err != nil {
		return nil, err
	}
	path := t.env.resolve(a.Path)
	return &permission.Request{
		TargetPath: path,
		Operation:  permission.Write,
		Question:   fmt.Sprintf("Allow write_file to write %d bytes to %s?", len(a.Content), path),
	}, nil
}

func (t *WriteFile) Run(ctx context.Context, args Args) (string, error) {
	var a writeFileArgs
	if err := t.Bind(args, &a); err != nil {
		return "", err
	}

	path := t.env.resolve(a.Path)
	Status(ctx, "writing "+path)

	if a.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(a.Content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", a.Path, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(a.Content), path), nil
}
