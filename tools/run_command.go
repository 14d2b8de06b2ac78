package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"ollmchat/permission"
)

const runCommandDoc = `Run a shell command and return its combined output and exit code.
@param command {string} required Command line, run with sh -c
@param dir {string} optional Working directory, defaults to the project directory
@param timeout_seconds {integer} optional Kill the command after this many seconds (default 60, max 600)`

const (
	defaultCommandTimeout = 60 * time.Second
	maxCommandTimeout     = 600 * time.Second
)

type RunCommand struct {
	*Base
	env Env
}

type runCommandArgs struct {
	Command        string `json:"command"`
	Dir            string `json:"dir"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func NewRunCommand(env Env) *RunCommand {
	return &RunCommand{Base: NewBase("run_command", runCommandDoc), env: env}
}

func (t *RunCommand) workDir(a runCommandArgs) string {
	dir := a.Dir
	if dir == "" {
		dir = t.env.ProjectDir
	}
	if dir == "" {
		dir = "."
	}
	return t.env.resolve(dir)
}

// Prepare asks for execute permission on the working directory.
func (t *RunCommand) Prepare(ctx context.Context, args Args) (*permission.Request, error) {
	var a runCommandArgs
	if err := t.Bind(args, &a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Command) == "" {
		return nil, errors.New("empty command")
	}
	dir := t.workDir(a)
	return &permission.Request{
		TargetPath: dir,
		Operation:  permission.Execute,
		Question:   fmt.Sprintf("Allow run_command to execute `%s` in %s?", a.Command, dir),
	}, nil
}

func (t *RunCommand) Run(ctx context.Context, args Args) (string, error) {
	var a runCommandArgs
	if err := t.Bind(args, &a); err != nil {
		return "", err
	}

	timeout := defaultCommandTimeout
	if a.TimeoutSeconds > 0 {
		timeout = min(time.Duration(a.TimeoutSeconds)*time.Second, maxCommandTimeout)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	Status(ctx, "$ "+a.Command)

	cmd := exec.CommandContext(ctx, "sh", "-c", a.Command)
	cmd.Dir = t.workDir(a)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("failed to run command: %w", err)
		}
		code = exitErr.ExitCode()
	}
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s\n%s", timeout, Tail(out.String(), maxToolOutputBytes))
	}

	return fmt.Sprintf("%s\n[exit code %d]", strings.TrimRight(Tail(out.String(), maxToolOutputBytes), "\n"), code), nil
}
