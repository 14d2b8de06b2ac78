package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"ollmchat/client"
	"ollmchat/ollama"
	"ollmchat/ui"
)

const helpText = `Commands:
  /models          list installed models
  /model <name>    switch model
  /new             start a new conversation
  /history         list saved conversations
  /resume <id>     continue a saved conversation
  /tools           list tools offered to the model
  /exit            quit
Anything else is sent to the model. Ctrl+C cancels a running answer.`

// session is the interactive loop around one client.
type session struct {
	client *client.Client
	out    io.Writer

	// input defaults to plain line reading from in.
	input lineReader
	in    io.Reader

	// fresh makes the next message start a new conversation.
	fresh bool
}

func (s *session) loop(ctx context.Context) error {
	fmt.Fprintf(s.out, "%s %s\n", ui.TitleStyle.Render("ollmchat"), ui.DimStyle.Render(s.client.Connection().Model+" · /help for commands"))
	if !ollama.ModelSupportsToolCalling(s.client.Connection().Model) {
		fmt.Fprintln(s.out, ui.DimStyle.Render("This model may not support tool calling."))
	}

	if s.input == nil {
		s.input = newScanReader(s.in, s.out)
	}
	for {
		line, err := s.input.readLine("> ")
		if errors.Is(err, errAborted) {
			fmt.Fprintln(s.out, ui.DimStyle.Render("(/exit or Ctrl+D to quit)"))
			continue
		}
		if err != nil {
			fmt.Fprintln(s.out)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.command(ctx, line); quit {
				return nil
			}
			continue
		}

		// Errors are already printed; the session goes on.
		_ = s.send(ctx, line)
	}
}

// command runs a slash command and reports whether to quit.
func (s *session) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	arg := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch fields[0] {
	case "/exit", "/quit":
		return true

	case "/help":
		fmt.Fprintln(s.out, helpText)

	case "/models":
		models, err := s.client.ListModels(ctx)
		if err != nil {
			s.printError(err)
			return false
		}
		w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
		current := s.client.Connection().Model
		for _, m := range models {
			marker := " "
			if m.Name == current {
				marker = "*"
			}
			tools := ""
			if m.Tools {
				tools = "tools"
			}
			fmt.Fprintf(w, "%s %s\t%.1f GB\t%s\n", marker, m.Name, float64(m.Size)/1e9, tools)
		}
		w.Flush()

	case "/model":
		if arg == "" {
			fmt.Fprintln(s.out, s.client.Connection().Model)
			return false
		}
		s.client.SetModel(arg)
		fmt.Fprintln(s.out, ui.DimStyle.Render("model set to "+arg))
		if !ollama.ModelSupportsToolCalling(arg) {
			fmt.Fprintln(s.out, ui.DimStyle.Render("This model may not support tool calling."))
		}

	case "/new":
		s.fresh = true
		fmt.Fprintln(s.out, ui.DimStyle.Render("next message starts a new conversation"))

	case "/history":
		h := s.client.History()
		if h == nil {
			fmt.Fprintln(s.out, ui.DimStyle.Render("history is disabled"))
			return false
		}
		list, err := h.List(ctx)
		if err != nil {
			s.printError(err)
			return false
		}
		w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
		for _, md := range list {
			fmt.Fprintf(w, "%s\t%s\t%d msgs\t%s\n", md.ID, md.UpdatedAt.Local().Format("2006-01-02 15:04"), md.MessageCount, md.Name)
		}
		w.Flush()

	case "/resume":
		if arg == "" {
			fmt.Fprintln(s.out, "usage: /resume <id>")
			return false
		}
		if err := s.client.Resume(ctx, arg); err != nil {
			s.printError(err)
			return false
		}
		s.fresh = false
		fmt.Fprintln(s.out, ui.DimStyle.Render(fmt.Sprintf("resumed %s (%d messages)", arg, len(s.client.Messages()))))

	case "/tools":
		for _, t := range s.client.Registry().Active() {
			fmt.Fprintf(s.out, "%s  %s\n", ui.TitleStyle.Render(t.Name()), ui.DimStyle.Render(firstLine(t.Description())))
		}

	default:
		fmt.Fprintf(s.out, "unknown command %s, try /help\n", fields[0])
	}
	return false
}

// send runs one turn. Ctrl+C cancels the turn instead of the program.
func (s *session) send(ctx context.Context, text string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var err error
	if s.fresh {
		s.fresh = false
		_, err = s.client.Chat(ctx, text)
	} else {
		_, err = s.client.Reply(ctx, text)
	}
	if err != nil {
		s.printError(err)
	}
	return err
}

func (s *session) printError(err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, ollama.ErrNotRunning):
		msg += fmt.Sprintf("\nIs Ollama running at %s?", s.client.Connection().BaseURL)
	case errors.Is(err, ollama.ErrNotFound):
		msg += "\nUse /models to see what is installed."
	case errors.Is(err, ollama.ErrUnauthorized):
		msg += "\nCheck api_key in the config file."
	}
	fmt.Fprintln(s.out, ui.ErrorStyle.Render(msg))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
