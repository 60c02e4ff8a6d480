package llm

import (
	"context"
	"fmt"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

const (
	anthropicDefaultModel = "claude-3-5-sonnet-latest"
	anthropicMaxTokens    = 1024
)

// Anthropic implements LargeLanguageModel using the Anthropic messages
// streaming API.
type Anthropic struct {
	client      sdk.Client
	model       string
	temperature float64
	logger      *zap.Logger

	mu    sync.Mutex
	usage repositories.TokenUsage
}

var _ repositories.LargeLanguageModel = (*Anthropic)(nil)

func NewAnthropic(apiKey, model string, temperature float64, logger *zap.Logger) *Anthropic {
	if model == "" {
		model = anthropicDefaultModel
	}
	return &Anthropic{
		client:      sdk.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

func (a *Anthropic) Provider() string { return "anthropic" }

func (a *Anthropic) Usage() repositories.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

func (a *Anthropic) StreamCompletion(ctx context.Context, history []repositories.ChatMessage) (repositories.CompletionStream, error) {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(a.model),
		MaxTokens:   anthropicMaxTokens,
		Temperature: sdk.Float(a.temperature),
	}
	for _, msg := range history {
		switch msg.Role {
		case repositories.SystemRole:
			params.System = []sdk.TextBlockParam{{Text: msg.Content}}
		case repositories.AssistantRole:
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}

	sse := a.client.Messages.NewStreaming(ctx, params)

	s := newStream()
	go func() {
		defer close(s.deltas)

		var msg sdk.Message
		for sse.Next() {
			event := sse.Current()
			if err := msg.Accumulate(event); err != nil {
				s.fail(fmt.Errorf("anthropic accumulate: %w", err))
				return
			}
			switch ev := event.AsAny().(type) {
			case sdk.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case sdk.TextDelta:
					if !s.send(ctx, delta.Text) {
						return
					}
				}
			}
		}
		if err := sse.Err(); err != nil {
			s.fail(fmt.Errorf("anthropic stream: %w", err))
			return
		}

		a.mu.Lock()
		a.usage.PromptTokens += int(msg.Usage.InputTokens)
		a.usage.CompletionTokens += int(msg.Usage.OutputTokens)
		a.mu.Unlock()
	}()
	return s, nil
}
