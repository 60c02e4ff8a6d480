package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

const openAIDefaultModel = "gpt-4o"

// OpenAI implements LargeLanguageModel using the OpenAI chat completions
// streaming API.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *zap.Logger

	mu    sync.Mutex
	usage repositories.TokenUsage
}

var _ repositories.LargeLanguageModel = (*OpenAI)(nil)

func NewOpenAI(apiKey, model string, temperature float64, logger *zap.Logger) *OpenAI {
	if model == "" {
		model = openAIDefaultModel
	}
	return &OpenAI{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

func (o *OpenAI) Provider() string { return "openai" }

func (o *OpenAI) Usage() repositories.TokenUsage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.usage
}

func (o *OpenAI) StreamCompletion(ctx context.Context, history []repositories.ChatMessage) (repositories.CompletionStream, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case repositories.SystemRole:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case repositories.AssistantRole:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	sse := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(o.temperature),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	})

	s := newStream()
	go func() {
		defer close(s.deltas)

		var acc openai.ChatCompletionAccumulator
		for sse.Next() {
			chunk := sse.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) == 0 {
				continue
			}
			if !s.send(ctx, chunk.Choices[0].Delta.Content) {
				return
			}
		}
		if err := sse.Err(); err != nil {
			s.fail(fmt.Errorf("openai stream: %w", err))
			return
		}

		o.mu.Lock()
		o.usage.PromptTokens += int(acc.Usage.PromptTokens)
		o.usage.CompletionTokens += int(acc.Usage.CompletionTokens)
		o.mu.Unlock()
	}()
	return s, nil
}
