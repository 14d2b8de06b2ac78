package ui

import (
	"regexp"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s]+)`)
	ansiRegex       = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// codeBlockMarker prefixes code block lines in go-term-markdown output.
const codeBlockMarker = "┃"

// RenderMarkdown renders text for the terminal. Links are reduced to their
// URL so the terminal can detect them.
func RenderMarkdown(text string, width int) string {
	if width <= 0 {
		width = 80
	}

	text = mdLinkRegex.ReplaceAllString(text, "$2")

	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	r := markdown.NewRenderer(width, 0)
	rendered := string(gomarkdown.Render(p.Parse([]byte(text)), r))

	// Inline code: blue background and italic becomes red text.
	rendered = inlineCodeRegex.ReplaceAllString(rendered, "\x1b[31m$1\x1b[0m")
	rendered = colorURLs(rendered)

	return strings.TrimRight(rendered, "\n")
}

func colorURLs(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if !strings.Contains(line, codeBlockMarker) {
			lines[i] = urlRegex.ReplaceAllString(line, "\x1b[31m$1\x1b[0m")
		}
	}
	return strings.Join(lines, "\n")
}

// StripANSI removes color escapes.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
