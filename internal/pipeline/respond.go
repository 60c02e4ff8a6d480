package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/repositories"
	"github.com/fleetline/dispatchvoice/internal/metrics"
)

// RespondStage generates one assistant response per committed user
// utterance. Streamed deltas are re-chunked at sentence boundaries so
// synthesis can begin before the model finishes, and each response is
// closed with an end-of-response control frame.
type RespondStage struct {
	llm          repositories.LargeLanguageModel
	conversation *Conversation
	logger       *zap.Logger
}

func NewRespondStage(llm repositories.LargeLanguageModel, conversation *Conversation, logger *zap.Logger) *RespondStage {
	return &RespondStage{llm: llm, conversation: conversation, logger: logger}
}

func (s *RespondStage) Name() string { return "respond" }

func (s *RespondStage) Run(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	for {
		select {
		case frame, ok := <-in:
			if !ok {
				return nil
			}
			if err := forward(ctx, out, frame); err != nil {
				return err
			}
			if final, isFinal := frame.(FinalTranscriptFrame); isFinal {
				if strings.TrimSpace(final.Text) == "" {
					continue
				}
				if err := s.generate(ctx, out); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *RespondStage) generate(ctx context.Context, out chan<- Frame) error {
	stream, err := s.llm.StreamCompletion(ctx, s.conversation.History())
	if err != nil {
		metrics.ProviderErrors.WithLabelValues(s.llm.Provider()).Inc()
		return fmt.Errorf("starting completion: %w", err)
	}

	var pending strings.Builder
	for delta := range stream.Deltas() {
		pending.WriteString(delta)
		for {
			sentence, rest, found := splitSentence(pending.String())
			if !found {
				break
			}
			pending.Reset()
			pending.WriteString(rest)
			metrics.PipelineFrames.WithLabelValues(s.Name(), "text").Inc()
			if err := forward(ctx, out, TextFrame{Text: sentence}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		metrics.ProviderErrors.WithLabelValues(s.llm.Provider()).Inc()
		return fmt.Errorf("completion stream: %w", err)
	}

	if tail := pending.String(); strings.TrimSpace(tail) != "" {
		metrics.PipelineFrames.WithLabelValues(s.Name(), "text").Inc()
		if err := forward(ctx, out, TextFrame{Text: tail}); err != nil {
			return err
		}
	}
	return forward(ctx, out, ControlFrame{Signal: SignalEndOfResponse})
}

// splitSentence cuts text at the first sentence terminator followed by
// whitespace or end of text. The sentence keeps its trailing space so
// chunks concatenate back to the original.
func splitSentence(text string) (sentence, rest string, found bool) {
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + 1
		if end == len(text) {
			// Terminator at the buffer edge may be mid-number; wait for more.
			return "", "", false
		}
		next, _ := firstRune(text[end:])
		if unicode.IsSpace(next) {
			for end < len(text) && unicode.IsSpace(rune(text[end])) {
				end++
			}
			return text[:end], text[end:], true
		}
	}
	return "", "", false
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}
