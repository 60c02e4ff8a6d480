package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

// tagStage appends its tag to every text frame and forwards the rest.
type tagStage struct {
	tag string
}

func (s *tagStage) Name() string { return "tag_" + s.tag }

func (s *tagStage) Run(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	for frame := range in {
		if text, ok := frame.(TextFrame); ok {
			frame = TextFrame{Text: text.Text + s.tag}
		}
		if err := forward(ctx, out, frame); err != nil {
			return err
		}
	}
	return nil
}

// failStage returns its error as soon as the first frame arrives.
type failStage struct {
	err error
}

func (s *failStage) Name() string { return "fail" }

func (s *failStage) Run(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	for range in {
		return s.err
	}
	return nil
}

func TestPipelineRunChainsStagesInOrder(t *testing.T) {
	logger := zaptest.NewLogger(t)
	p := New(logger, &tagStage{tag: "a"}, &tagStage{tag: "b"})

	source := make(chan Frame, 4)
	source <- TextFrame{Text: "x"}
	source <- AudioFrame{Data: []byte{1, 2}, SampleRate: defaultSampleRate}
	source <- TextFrame{Text: "y"}
	close(source)

	var got []Frame
	err := p.Run(context.Background(), source, func(f Frame) error {
		got = append(got, f)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("sink received %d frames, want 3", len(got))
	}
	first, ok := got[0].(TextFrame)
	if !ok || first.Text != "xab" {
		t.Fatalf("first frame = %#v, want text xab", got[0])
	}
	if _, ok := got[1].(AudioFrame); !ok {
		t.Fatalf("audio frame not forwarded untouched: %#v", got[1])
	}
	last, ok := got[2].(TextFrame)
	if !ok || last.Text != "yab" {
		t.Fatalf("last frame = %#v, want text yab", got[2])
	}
}

func TestPipelineRunPropagatesStageError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	boom := errors.New("decoder jammed")
	p := New(logger, &tagStage{tag: "a"}, &failStage{err: boom})

	source := make(chan Frame, 1)
	source <- TextFrame{Text: "x"}
	close(source)

	err := p.Run(context.Background(), source, func(Frame) error { return nil })
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
}

func TestPipelineRunPropagatesSinkError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	p := New(logger, &tagStage{tag: "a"})

	source := make(chan Frame, 1)
	source <- TextFrame{Text: "x"}
	close(source)

	err := p.Run(context.Background(), source, func(Frame) error {
		return errors.New("sink full")
	})
	if err == nil || !strings.Contains(err.Error(), "sink full") {
		t.Fatalf("Run error = %v, want sink full", err)
	}
}
