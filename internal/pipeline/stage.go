package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// frameBuffer is the channel depth between adjacent stages. Deep
	// enough to absorb synthesis bursts without stalling recognition.
	frameBuffer = 64

	defaultSampleRate = 16000
	defaultEncoding   = "linear16"

	// finalizeTimeout bounds the durable writes after a call ends.
	finalizeTimeout = 30 * time.Second
)

// Stage transforms one frame stream into another. Run consumes in until
// it is closed or ctx is cancelled, then returns; the runner owns closing
// out. A stage forwards every frame kind it does not handle.
type Stage interface {
	Name() string
	Run(ctx context.Context, in <-chan Frame, out chan<- Frame) error
}

// Pipeline is an ordered chain of stages connected by buffered channels.
type Pipeline struct {
	stages []Stage
	logger *zap.Logger
}

func New(logger *zap.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, logger: logger}
}

// Run pumps frames from source through every stage into sink. It returns
// when the source closes and all stages have drained, or when a stage
// fails, in which case the shared context cancels the rest. The sink
// receives the final stage's output and must consume until close.
func (p *Pipeline) Run(ctx context.Context, source <-chan Frame, sink func(Frame) error) error {
	g, ctx := errgroup.WithContext(ctx)

	in := source
	for _, stage := range p.stages {
		stage := stage
		stageIn := in
		stageOut := make(chan Frame, frameBuffer)
		g.Go(func() error {
			defer close(stageOut)
			if err := stage.Run(ctx, stageIn, stageOut); err != nil {
				p.logger.Error("pipeline stage failed",
					zap.String("stage", stage.Name()),
					zap.Error(err))
				return err
			}
			return nil
		})
		in = stageOut
	}

	last := in
	g.Go(func() error {
		for frame := range last {
			if err := sink(frame); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

// forward emits a frame unless ctx is cancelled.
func forward(ctx context.Context, out chan<- Frame, f Frame) error {
	select {
	case out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
