package repositories

import "context"

// Role defines the type of message sender.
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenUsage counts the tokens a completion consumed.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// CompletionStream delivers one streamed model response. Deltas arrive as
// they are generated; the channel closes when the response is complete or
// errs out, after which Err reports what ended it.
type CompletionStream interface {
	Deltas() <-chan string
	Err() error
}

// LargeLanguageModel abstracts any streaming chat provider.
type LargeLanguageModel interface {
	Provider() string
	// StreamCompletion generates a response to the conversation so far.
	StreamCompletion(ctx context.Context, history []ChatMessage) (CompletionStream, error)
	// Usage reports the cumulative token counts across completions.
	Usage() TokenUsage
}
