package chat

import (
	"sync"

	"ollmchat/model"
)

// EventType names what happened.
type EventType int

const (
	// EventChunk fires while streaming whenever content or thinking grew, or
	// when the response became done.
	EventChunk EventType = iota
	// EventContent carries the final assistant message of a turn.
	EventContent
	// EventToolMessage carries tool progress and unknown-tool notices.
	EventToolMessage
	// EventTurnSent fires before every request, continuations included.
	EventTurnSent
	// EventStreamStart fires on the first chunk of a streamed response.
	EventStreamStart
)

func (t EventType) String() string {
	switch t {
	case EventChunk:
		return "chunk"
	case EventContent:
		return "content"
	case EventToolMessage:
		return "tool-message"
	case EventTurnSent:
		return "turn-sent"
	case EventStreamStart:
		return "stream-start"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Only the fields relevant to Type are
// set.
type Event struct {
	Type     EventType
	Response *model.StreamingResponse
	Message  model.Message
	Text     string
	Request  *model.ChatRequest
}

type subscriber struct {
	id int
	fn func(Event)
}

// Bus is a synchronous publish/subscribe hub. Handlers run on the
// publishing goroutine, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[EventType][]subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]subscriber)}
}

// Subscribe registers fn for events of type t and returns a function that
// removes it.
func (b *Bus) Subscribe(t EventType, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i, s := range list {
			if s.id == id {
				b.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to the current subscribers of e.Type.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	list := append([]subscriber(nil), b.subs[e.Type]...)
	b.mu.RUnlock()

	for _, s := range list {
		s.fn(e)
	}
}
