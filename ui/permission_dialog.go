package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ollmchat/config"
	"ollmchat/permission"
)

type dialogKeyMap struct {
	AllowOnce    key.Binding
	AllowSession key.Binding
	AllowAlways  key.Binding
	DenyOnce     key.Binding
	DenySession  key.Binding
	DenyAlways   key.Binding
	Cancel       key.Binding
}

var dialogKeys = dialogKeyMap{
	AllowOnce:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "Allow once")),
	AllowSession: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "Session")),
	AllowAlways:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "Always")),
	DenyOnce:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "Deny")),
	DenySession:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "Deny session")),
	DenyAlways:   key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "Never")),
	Cancel:       key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "Cancel")),
}

// decide maps a key press to a decision. Cancel denies once.
func decide(msg tea.KeyMsg) (permission.Decision, bool) {
	switch {
	case key.Matches(msg, dialogKeys.AllowOnce):
		return permission.Decision{Allow: true, Scope: permission.Once}, true
	case key.Matches(msg, dialogKeys.AllowSession):
		return permission.Decision{Allow: true, Scope: permission.Session}, true
	case key.Matches(msg, dialogKeys.AllowAlways):
		return permission.Decision{Allow: true, Scope: permission.Always}, true
	case key.Matches(msg, dialogKeys.DenyOnce), key.Matches(msg, dialogKeys.Cancel):
		return permission.Decision{Allow: false, Scope: permission.Once}, true
	case key.Matches(msg, dialogKeys.DenySession):
		return permission.Decision{Allow: false, Scope: permission.Session}, true
	case key.Matches(msg, dialogKeys.DenyAlways):
		return permission.Decision{Allow: false, Scope: permission.Always}, true
	}
	return permission.Decision{}, false
}

// permissionDialog is the inline bubbletea model behind PromptAsker.
type permissionDialog struct {
	req      permission.Request
	decision permission.Decision
	answered bool
	width    int
}

func newPermissionDialog(req permission.Request) permissionDialog {
	return permissionDialog{req: req, width: 80}
}

func (m permissionDialog) Init() tea.Cmd {
	return nil
}

func (m permissionDialog) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if d, ok := decide(msg); ok {
			m.decision = d
			m.answered = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m permissionDialog) View() string {
	if m.answered {
		return ""
	}
	return RenderPermissionDialog(m.req, m.width)
}

// RenderPermissionDialog draws the request in the three-section layout:
// title, details and the key footer.
func RenderPermissionDialog(req permission.Request, width int) string {
	modalWidth := 70
	if width > 0 && width < modalWidth+4 {
		modalWidth = width - 4
	}
	if modalWidth < 20 {
		modalWidth = 20
	}

	titleSection := lipgloss.NewStyle().
		Bold(true).
		Foreground(warningColor).
		Width(modalWidth).
		Render("Permission Request")

	labelStyle := TitleStyle
	lineStyle := lipgloss.NewStyle().Width(modalWidth)

	var lines []string
	lines = append(lines, lineStyle.Render(labelStyle.Render("Tool:   ")+req.ToolName))
	lines = append(lines, lineStyle.Render(labelStyle.Render("Target: ")+req.TargetPath))
	lines = append(lines, lineStyle.Render(labelStyle.Render("Access: ")+req.Operation.Verb()))
	if req.Question != "" {
		lines = append(lines, "", lineStyle.Render(req.Question))
	}

	messageSection := lipgloss.NewStyle().
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Width(modalWidth).
		Render(strings.Join(lines, "\n"))

	k := dialogKeys
	footer := FormatFooter(
		k.AllowOnce.Help().Key, k.AllowOnce.Help().Desc,
		k.AllowSession.Help().Key, k.AllowSession.Help().Desc,
		k.AllowAlways.Help().Key, k.AllowAlways.Help().Desc,
		k.DenyOnce.Help().Key, k.DenyOnce.Help().Desc,
		k.DenySession.Help().Key, k.DenySession.Help().Desc,
		k.DenyAlways.Help().Key, k.DenyAlways.Help().Desc,
	)
	footerSection := lipgloss.NewStyle().
		Foreground(dimColor).
		Width(modalWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(footer)

	return strings.Join([]string{titleSection, messageSection, footerSection}, "\n") + "\n"
}

// PromptAsker asks the user in the terminal. It implements
// permission.Asker; one dialog runs at a time.
type PromptAsker struct {
	In  io.Reader
	Out io.Writer

	mu sync.Mutex
}

func NewPromptAsker() *PromptAsker {
	return &PromptAsker{In: os.Stdin, Out: os.Stderr}
}

func (p *PromptAsker) Ask(ctx context.Context, req permission.Request) (permission.Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prog := tea.NewProgram(
		newPermissionDialog(req),
		tea.WithInput(p.In),
		tea.WithOutput(p.Out),
		tea.WithContext(ctx),
	)
	final, err := prog.Run()
	if err != nil {
		return permission.Decision{}, fmt.Errorf("failed to run permission dialog: %w", err)
	}

	m, ok := final.(permissionDialog)
	if !ok || !m.answered {
		return permission.Decision{}, fmt.Errorf("permission dialog closed without an answer")
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[ui] %s %s: allow=%v scope=%s", req.ToolName, req.TargetPath, m.decision.Allow, m.decision.Scope)
	}
	return m.decision, nil
}
