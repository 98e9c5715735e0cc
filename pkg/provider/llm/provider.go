// Package llm defines the language-model provider abstraction used to
// generate conversational replies.
//
// The pipeline hands a provider the full dialogue context (system prompt plus
// the most recent turns) and expects a single assistant reply back. Streaming
// is deliberately not part of the interface: replies are synthesized to audio
// as a whole, so partial text has no consumer.
package llm

import "context"

// Role identifies the author of a dialogue message.
type Role string

// Dialogue roles as understood by chat-completion backends.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of dialogue history.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest describes a single reply generation.
type CompletionRequest struct {
	// SystemPrompt is prepended as the system message. May be empty.
	SystemPrompt string

	// Messages is the dialogue history, oldest first. The last message is
	// expected to carry RoleUser.
	Messages []Message

	// Temperature controls sampling randomness. Zero means backend default.
	Temperature float64

	// MaxTokens caps the reply length. Zero means backend default.
	MaxTokens int
}

// Provider generates an assistant reply for a dialogue.
type Provider interface {
	// Complete returns the assistant reply text for the given request.
	// Implementations must respect ctx cancellation.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
