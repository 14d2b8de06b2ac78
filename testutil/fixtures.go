package testutil

import (
	"ollmchat/model"
)

// EchoToolDoc declares a tool with one required string parameter.
const EchoToolDoc = `Echo the given text back.
@param text {string} required Text to echo`

// Text is a streamed content chunk.
func Text(s string) model.Chunk {
	return model.Chunk{Content: s}
}

// Done is the final chunk of a response.
func Done() model.Chunk {
	return model.Chunk{Done: true, DoneReason: "stop"}
}

// Call is a done chunk requesting one tool call.
func Call(id, name string, args map[string]any) model.Chunk {
	return model.Chunk{
		Done:      true,
		ToolCalls: []model.ToolCall{{ID: id, Name: name, Arguments: args}},
	}
}

// Answer is a complete streamed text response.
func Answer(parts ...string) []model.Chunk {
	chunks := make([]model.Chunk, 0, len(parts)+1)
	for _, p := range parts {
		chunks = append(chunks, Text(p))
	}
	return append(chunks, Done())
}

// Conversation returns a short sample history.
func Conversation() []model.Message {
	return []model.Message{
		model.NewMessage(model.RoleSystem, "You are a helpful assistant."),
		model.NewMessage(model.RoleUser, "Hello, how are you?"),
		model.NewMessage(model.RoleAssistant, "I'm doing well, thank you!"),
	}
}
