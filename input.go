package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"

	"ollmchat/config"
)

// errAborted is returned by readLine when the user cancels the prompt
// with Ctrl+C.
var errAborted = errors.New("prompt aborted")

// lineReader reads one line of user input after printing prompt.
type lineReader interface {
	readLine(prompt string) (string, error)
	Close() error
}

// newLineReader uses line editing and history on a terminal and plain
// line reading otherwise.
func newLineReader(dataDir string) lineReader {
	if liner.TerminalSupported() && isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()) {
		return newEditor(filepath.Join(dataDir, "input_history"))
	}
	return newScanReader(os.Stdin, os.Stdout)
}

// editor is the interactive reader: arrow keys, history search and a
// history file kept across runs.
type editor struct {
	line        *liner.State
	historyFile string
}

func newEditor(historyFile string) *editor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	e := &editor{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		if _, err := line.ReadHistory(f); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[repl] failed to read input history: %v", err)
		}
		f.Close()
	}
	return e
}

func (e *editor) readLine(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errAborted
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// Close writes the history file (0600) and restores the terminal.
func (e *editor) Close() error {
	if f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
		if _, err := e.line.WriteHistory(f); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[repl] failed to write input history: %v", err)
		}
		f.Close()
	}
	return e.line.Close()
}

// scanReader reads lines from a pipe or a test buffer.
type scanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newScanReader(in io.Reader, out io.Writer) *scanReader {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &scanReader{scanner: scanner, out: out}
}

func (r *scanReader) readLine(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() error { return nil }
