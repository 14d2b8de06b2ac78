package ui

import (
	"fmt"
	"io"
	"sync"

	"ollmchat/chat"
)

// Printer writes conversation events to a terminal: streamed text as it
// arrives, thinking and tool status dimmed, and non-streamed answers
// rendered as markdown.
type Printer struct {
	out   io.Writer
	width int

	mu       sync.Mutex
	streamed bool
	thinking bool
	midLine  bool
}

func NewPrinter(out io.Writer, width int) *Printer {
	return &Printer{out: out, width: width}
}

// Attach subscribes the printer using subscribe (a Bus or client Subscribe
// method) and returns a function that detaches it.
func (p *Printer) Attach(subscribe func(chat.EventType, func(chat.Event)) func()) func() {
	unsubs := []func(){
		subscribe(chat.EventStreamStart, p.onStreamStart),
		subscribe(chat.EventChunk, p.onChunk),
		subscribe(chat.EventToolMessage, p.onToolMessage),
		subscribe(chat.EventContent, p.onContent),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (p *Printer) onStreamStart(chat.Event) {
	p.mu.Lock()
	p.streamed = true
	p.mu.Unlock()
}

func (p *Printer) onChunk(e chat.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	resp := e.Response
	if resp == nil {
		return
	}
	if resp.IsThinking() {
		p.thinking = true
		fmt.Fprint(p.out, DimStyle.Render(resp.ThinkingDelta()))
		p.midLine = true
	}
	if d := resp.Delta(); d != "" {
		if p.thinking {
			p.thinking = false
			fmt.Fprint(p.out, "\n\n")
		}
		fmt.Fprint(p.out, d)
		p.midLine = true
	}
	if resp.Done() {
		p.endLine()
		p.thinking = false
	}
}

func (p *Printer) onToolMessage(e chat.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
	fmt.Fprintln(p.out, DimStyle.Render("  "+e.Text))
}

func (p *Printer) onContent(e chat.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.streamed && e.Message.Content != "" {
		fmt.Fprintln(p.out, RenderMarkdown(e.Message.Content, p.width))
	}
	p.endLine()
	p.streamed = false
}

// endLine terminates a partially written line. Called with mu held.
func (p *Printer) endLine() {
	if p.midLine {
		fmt.Fprintln(p.out)
		p.midLine = false
	}
}
