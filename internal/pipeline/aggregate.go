package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// Conversation is the mutable LLM context shared by the aggregation
// stages: the system prompt followed by alternating user and assistant
// turns. Safe for concurrent use.
type Conversation struct {
	mu       sync.RWMutex
	messages []repositories.ChatMessage
}

func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		c.messages = append(c.messages, repositories.ChatMessage{
			Role:    repositories.SystemRole,
			Content: systemPrompt,
		})
	}
	return c
}

func (c *Conversation) Append(role repositories.Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, repositories.ChatMessage{Role: role, Content: content})
}

// History returns a copy of the conversation so far.
func (c *Conversation) History() []repositories.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]repositories.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// UserAggregateStage appends each committed user utterance to the
// conversation before it reaches the response stage, so generation always
// sees the turn that triggered it.
type UserAggregateStage struct {
	conversation *Conversation
}

func NewUserAggregateStage(conversation *Conversation) *UserAggregateStage {
	return &UserAggregateStage{conversation: conversation}
}

func (s *UserAggregateStage) Name() string { return "user_aggregate" }

func (s *UserAggregateStage) Run(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	for {
		select {
		case frame, ok := <-in:
			if !ok {
				return nil
			}
			if final, isFinal := frame.(FinalTranscriptFrame); isFinal {
				if text := strings.TrimSpace(final.Text); text != "" {
					s.conversation.Append(repositories.UserRole, text)
				}
			}
			if err := forward(ctx, out, frame); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AssistantAggregateStage buffers assistant text deltas and commits the
// assembled response to the conversation when the response closes.
type AssistantAggregateStage struct {
	conversation *Conversation
	pending      strings.Builder
}

func NewAssistantAggregateStage(conversation *Conversation) *AssistantAggregateStage {
	return &AssistantAggregateStage{conversation: conversation}
}

func (s *AssistantAggregateStage) Name() string { return "assistant_aggregate" }

func (s *AssistantAggregateStage) Run(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	defer s.flush()
	for {
		select {
		case frame, ok := <-in:
			if !ok {
				return nil
			}
			switch f := frame.(type) {
			case TextFrame:
				s.pending.WriteString(f.Text)
			case ControlFrame:
				if f.Signal == SignalEndOfResponse {
					s.flush()
				}
			}
			if err := forward(ctx, out, frame); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *AssistantAggregateStage) flush() {
	text := strings.TrimSpace(s.pending.String())
	s.pending.Reset()
	if text != "" {
		s.conversation.Append(repositories.AssistantRole, text)
	}
}
