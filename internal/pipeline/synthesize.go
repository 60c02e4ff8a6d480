package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/repositories"
	"github.com/fleetline/dispatchvoice/internal/metrics"
)

// SynthesizeStage turns assistant text into audio frames. Each text chunk
// is synthesized in order; transcript frames and control frames pass
// through around the audio. With interrupts set, a barge-in raised while
// a chunk is synthesizing cancels the rest of that chunk's audio.
type SynthesizeStage struct {
	tts        repositories.TextToSpeech
	sampleRate int
	interrupts *Interrupter
	logger     *zap.Logger
}

func NewSynthesizeStage(tts repositories.TextToSpeech, sampleRate int, interrupts *Interrupter, logger *zap.Logger) *SynthesizeStage {
	return &SynthesizeStage{tts: tts, sampleRate: sampleRate, interrupts: interrupts, logger: logger}
}

func (s *SynthesizeStage) Name() string { return "synthesize" }

func (s *SynthesizeStage) Run(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	for {
		select {
		case frame, ok := <-in:
			if !ok {
				return nil
			}
			if ctrl, isCtrl := frame.(ControlFrame); isCtrl && ctrl.Signal == SignalInterrupt {
				// Consumed here; the out-of-band generation already
				// cancelled any in-flight synthesis.
				continue
			}
			text, isText := frame.(TextFrame)
			if !isText {
				if err := forward(ctx, out, frame); err != nil {
					return err
				}
				continue
			}
			if strings.TrimSpace(text.Text) == "" {
				continue
			}
			if err := s.synthesize(ctx, text.Text, out); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *SynthesizeStage) synthesize(ctx context.Context, text string, out chan<- Frame) error {
	synthCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var gen int64
	if s.interrupts != nil {
		gen = s.interrupts.Generation()
	}

	audio, err := s.tts.ConvertTextToSpeech(synthCtx, text)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues(s.tts.Provider()).Inc()
		return fmt.Errorf("synthesizing %d characters: %w", len(text), err)
	}
	for chunk := range audio {
		if s.interrupts != nil && s.interrupts.Generation() != gen {
			s.logger.Debug("synthesis interrupted by caller speech")
			cancel()
			for range audio {
			}
			return nil
		}
		metrics.PipelineFrames.WithLabelValues(s.Name(), "audio").Inc()
		if err := forward(ctx, out, AudioFrame{Data: chunk, SampleRate: s.sampleRate}); err != nil {
			return err
		}
	}
	return nil
}
