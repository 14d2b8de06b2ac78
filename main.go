package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ollmchat/client"
	"ollmchat/config"
	"ollmchat/ui"
)

const (
	Version = "v0.1.0"
	License = "Apache-2.0"
)

type options struct {
	configPath string
	model      string
	host       string
	ask        string
	noStream   bool
	think      bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "ollmchat [prompt]",
		Short: "Chat with an Ollama model that can call tools",
		Long: `ollmchat talks to an Ollama server and lets the model call tools.
Every file, command or network access a tool performs is checked against
your permission records and, when undecided, asked for.

With a prompt argument one turn is run and the program exits; without one
an interactive session starts.`,
		Version:      Version,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.config/ollmchat/config.toml)")
	f.StringVarP(&opts.model, "model", "m", "", "model name, overrides the config")
	f.StringVar(&opts.host, "host", "", "Ollama base URL, overrides the config")
	f.BoolVar(&opts.noStream, "no-stream", false, "wait for whole responses instead of streaming")
	f.BoolVar(&opts.think, "think", false, "ask thinking models to expose their reasoning")
	f.StringVar(&opts.ask, "ask", "", "permission mode: prompt, deny or policy")

	return cmd
}

// applyFlags overrides config values with the flags that were set.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts options) error {
	f := cmd.Flags()
	if f.Changed("model") {
		cfg.Ollama.Model = opts.model
	}
	if f.Changed("host") {
		cfg.Ollama.Host = opts.host
	}
	if f.Changed("no-stream") {
		cfg.Ollama.Stream = !opts.noStream
	}
	if f.Changed("think") {
		cfg.Ollama.Think = opts.think
	}
	if f.Changed("ask") {
		cfg.Permissions.Mode = opts.ask
	}
	return cfg.Validate()
}

func run(cmd *cobra.Command, opts options, prompt string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlags(cmd, cfg, opts); err != nil {
		return err
	}

	config.InitDebugLog(cfg.DataDir(), cfg.Debug)

	c, err := client.New(cfg, client.WithAsker(ui.NewPromptAsker()))
	if err != nil {
		return err
	}
	defer c.Close()

	if m := c.MCP(); m != nil {
		for id, err := range m.Failed() {
			fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render(fmt.Sprintf("MCP server %s unavailable: %v", id, err)))
		}
	}

	printer := ui.NewPrinter(os.Stdout, terminalWidth())
	detach := printer.Attach(c.Subscribe)
	defer detach()

	s := &session{client: c, out: os.Stdout}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if prompt != "" {
		return s.send(ctx, prompt)
	}

	s.input = newLineReader(cfg.DataDir())
	defer s.input.Close()
	return s.loop(ctx)
}

func terminalWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 20 {
		return n
	}
	return 80
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
