package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fleetline/dispatchvoice/domain/repositories"
	"github.com/fleetline/dispatchvoice/internal/metrics"
)

// RecognizeStage feeds inbound audio to the recognition provider and
// turns its hypotheses into transcript frames. Non-audio frames pass
// through unchanged ahead of recognition output. With interrupts set,
// caller speech also raises a barge-in signal so downstream synthesis
// stops talking over the caller.
type RecognizeStage struct {
	stt        repositories.SpeechToText
	audio      repositories.AudioConfig
	interrupts *Interrupter
	logger     *zap.Logger
}

func NewRecognizeStage(stt repositories.SpeechToText, audio repositories.AudioConfig, interrupts *Interrupter, logger *zap.Logger) *RecognizeStage {
	return &RecognizeStage{stt: stt, audio: audio, interrupts: interrupts, logger: logger}
}

func (s *RecognizeStage) Name() string { return "recognize" }

func (s *RecognizeStage) Run(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	stream, err := s.stt.Start(ctx, s.audio)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues(s.stt.Provider()).Inc()
		return fmt.Errorf("starting recognition stream: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer stream.Close()
		for {
			select {
			case frame, ok := <-in:
				if !ok {
					return nil
				}
				audio, isAudio := frame.(AudioFrame)
				if !isAudio {
					if err := forward(ctx, out, frame); err != nil {
						return err
					}
					continue
				}
				if err := stream.Write(audio.Data); err != nil {
					metrics.ProviderErrors.WithLabelValues(s.stt.Provider()).Inc()
					return fmt.Errorf("writing audio to recognizer: %w", err)
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case rec, ok := <-stream.Events():
				if !ok {
					return nil
				}
				if s.interrupts != nil && rec.Text != "" {
					s.interrupts.Interrupt()
					if err := forward(ctx, out, ControlFrame{Signal: SignalInterrupt}); err != nil {
						return err
					}
				}
				var frame Frame
				if rec.Final {
					frame = FinalTranscriptFrame{Text: rec.Text, Confidence: rec.Confidence}
					metrics.PipelineFrames.WithLabelValues(s.Name(), "final_transcript").Inc()
					s.logger.Debug("final transcript",
						zap.String("text", rec.Text),
						zap.Float64("confidence", rec.Confidence))
				} else {
					frame = InterimTranscriptFrame{Text: rec.Text, Confidence: rec.Confidence}
					metrics.PipelineFrames.WithLabelValues(s.Name(), "interim_transcript").Inc()
				}
				if err := forward(ctx, out, frame); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	return g.Wait()
}
