package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

const geminiDefaultModel = "gemini-2.0-flash"

// Gemini implements LargeLanguageModel using Google's Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *zap.Logger

	mu    sync.Mutex
	usage repositories.TokenUsage
}

var _ repositories.LargeLanguageModel = (*Gemini)(nil)

func NewGemini(ctx context.Context, apiKey, model string, temperature float64, logger *zap.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = geminiDefaultModel
	}
	return &Gemini{
		client:      client,
		model:       model,
		temperature: float32(temperature),
		logger:      logger,
	}, nil
}

func (g *Gemini) Provider() string { return "gemini" }

func (g *Gemini) Usage() repositories.TokenUsage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}

func (g *Gemini) addUsage(prompt, completion int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage.PromptTokens += prompt
	g.usage.CompletionTokens += completion
}

func (g *Gemini) StreamCompletion(ctx context.Context, history []repositories.ChatMessage) (repositories.CompletionStream, error) {
	contents, system := toGeminiContents(history)

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	s := newStream()
	go func() {
		defer close(s.deltas)
		// UsageMetadata counts are per stream; add the last reading to
		// the adapter totals once the stream is over.
		var prompt, completion int
		defer func() { g.addUsage(prompt, completion) }()
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				s.fail(fmt.Errorf("gemini stream: %w", err))
				return
			}
			if resp.UsageMetadata != nil {
				prompt = int(resp.UsageMetadata.PromptTokenCount)
				completion = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			for _, candidate := range resp.Candidates {
				if candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if !s.send(ctx, part.Text) {
						return
					}
				}
			}
		}
	}()
	return s, nil
}

// toGeminiContents maps conversation messages to Gemini contents,
// lifting the system prompt into a system instruction.
func toGeminiContents(history []repositories.ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system string
	for _, msg := range history {
		switch msg.Role {
		case repositories.SystemRole:
			system = msg.Content
		case repositories.AssistantRole:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return contents, system
}
