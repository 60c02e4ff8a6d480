package llm

import (
	"context"
	"sync"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// Mock is an in-memory LargeLanguageModel used in tests. Replies are
// served in order; the last reply repeats once the list is exhausted.
type Mock struct {
	Replies  []string
	StartErr error
	// TokensPerReply is added to usage for every completion served.
	TokensPerReply repositories.TokenUsage

	mu        sync.Mutex
	calls     int
	usage     repositories.TokenUsage
	Histories [][]repositories.ChatMessage
}

var _ repositories.LargeLanguageModel = (*Mock)(nil)

func NewMock(replies ...string) *Mock {
	if len(replies) == 0 {
		replies = []string{"Understood."}
	}
	return &Mock{
		Replies:        replies,
		TokensPerReply: repositories.TokenUsage{PromptTokens: 20, CompletionTokens: 10},
	}
}

func (m *Mock) Provider() string { return "mock_llm" }

func (m *Mock) Usage() repositories.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// Calls reports how many completions were requested.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mock) StreamCompletion(ctx context.Context, history []repositories.ChatMessage) (repositories.CompletionStream, error) {
	if m.StartErr != nil {
		return nil, m.StartErr
	}

	m.mu.Lock()
	snapshot := make([]repositories.ChatMessage, len(history))
	copy(snapshot, history)
	m.Histories = append(m.Histories, snapshot)
	reply := m.Replies[min(m.calls, len(m.Replies)-1)]
	m.calls++
	m.usage.PromptTokens += m.TokensPerReply.PromptTokens
	m.usage.CompletionTokens += m.TokensPerReply.CompletionTokens
	m.mu.Unlock()

	s := newStream()
	go func() {
		defer close(s.deltas)
		s.send(ctx, reply)
	}()
	return s, nil
}
