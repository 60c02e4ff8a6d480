package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/entities"
)

// TranscriptAppender receives captured utterances. Satisfied by
// entities.Session.
type TranscriptAppender interface {
	AppendTranscript(role entities.MessageRole, content string) error
}

// UserCaptureStage records committed user utterances into the transcript.
// Interim hypotheses are never captured. Append failures are logged and
// swallowed so the live call is not disturbed by bookkeeping.
type UserCaptureStage struct {
	sink   TranscriptAppender
	logger *zap.Logger
}

func NewUserCaptureStage(sink TranscriptAppender, logger *zap.Logger) *UserCaptureStage {
	return &UserCaptureStage{sink: sink, logger: logger}
}

func (s *UserCaptureStage) Name() string { return "user_capture" }

func (s *UserCaptureStage) Run(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	for {
		select {
		case frame, ok := <-in:
			if !ok {
				return nil
			}
			if final, isFinal := frame.(FinalTranscriptFrame); isFinal {
				if text := strings.TrimSpace(final.Text); text != "" {
					if err := s.sink.AppendTranscript(entities.MessageRoleUser, text); err != nil {
						s.logger.Warn("dropping user transcript entry", zap.Error(err))
					}
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

// AssistantCaptureStage buffers assistant text deltas and records the
// assembled response as one transcript entry when the response closes.
type AssistantCaptureStage struct {
	sink    TranscriptAppender
	logger  *zap.Logger
	pending strings.Builder
}

func NewAssistantCaptureStage(sink TranscriptAppender, logger *zap.Logger) *AssistantCaptureStage {
	return &AssistantCaptureStage{sink: sink, logger: logger}
}

func (s *AssistantCaptureStage) Name() string { return "assistant_capture" }

func (s *AssistantCaptureStage) Run(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
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

func (s *AssistantCaptureStage) flush() {
	text := strings.TrimSpace(s.pending.String())
	s.pending.Reset()
	if text == "" {
		return
	}
	if err := s.sink.AppendTranscript(entities.MessageRoleAssistant, text); err != nil {
		s.logger.Warn("dropping assistant transcript entry", zap.Error(err))
	}
}
