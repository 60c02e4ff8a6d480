package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/fleetline/dispatchvoice/adapters/stt"
	"github.com/fleetline/dispatchvoice/adapters/tts"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// tickingTTS streams audio chunks until its context is cancelled, so a
// test can interrupt synthesis mid-utterance.
type tickingTTS struct {
	characters atomic.Int64
}

func (t *tickingTTS) Provider() string           { return "ticking_tts" }
func (t *tickingTTS) CharactersSynthesized() int { return int(t.characters.Load()) }

func (t *tickingTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	t.characters.Add(int64(len(text)))
	out := make(chan []byte)
	go func() {
		defer close(out)
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case out <- []byte{0x01}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var _ repositories.TextToSpeech = (*tickingTTS)(nil)

func TestSynthesizeStageStopsOnInterrupt(t *testing.T) {
	interrupts := NewInterrupter()
	stage := NewSynthesizeStage(&tickingTTS{}, defaultSampleRate, interrupts, zaptest.NewLogger(t))

	in := make(chan Frame, 1)
	out := make(chan Frame, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- stage.Run(context.Background(), in, out)
	}()

	in <- TextFrame{Text: "a long announcement the caller talks over"}
	select {
	case <-out:
	case <-time.After(3 * time.Second):
		t.Fatal("no audio produced")
	}

	interrupts.Interrupt()
	close(in)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("stage error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stage kept synthesizing after interrupt")
	}
}

func TestSynthesizeStageConsumesInterruptFrames(t *testing.T) {
	stage := NewSynthesizeStage(tts.NewMock(), defaultSampleRate, NewInterrupter(), zaptest.NewLogger(t))
	got := runStage(t, stage,
		ControlFrame{Signal: SignalInterrupt},
		ControlFrame{Signal: SignalEndOfResponse},
	)
	if len(got) != 1 {
		t.Fatalf("forwarded %d frames, want 1", len(got))
	}
	ctrl, ok := got[0].(ControlFrame)
	if !ok || ctrl.Signal != SignalEndOfResponse {
		t.Errorf("forwarded frame = %#v, want end_of_response", got[0])
	}
}

func TestRecognizeStageSignalsInterruptOnSpeech(t *testing.T) {
	mock := stt.NewMock()
	interrupts := NewInterrupter()
	stage := NewRecognizeStage(mock, repositories.AudioConfig{
		SampleRate: defaultSampleRate,
		Encoding:   defaultEncoding,
		Language:   "en-US",
	}, interrupts, zaptest.NewLogger(t))

	in := make(chan Frame, 1)
	out := make(chan Frame, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- stage.Run(context.Background(), in, out)
	}()

	in <- AudioFrame{Data: make([]byte, 320), SampleRate: defaultSampleRate}
	waitFor(t, "recognition stream started", func() bool { return mock.AudioSeconds() > 0 })
	mock.Emit(repositories.Recognition{Text: "hang on", Confidence: 0.4})

	var frames []Frame
	for len(frames) < 2 {
		select {
		case f := <-out:
			frames = append(frames, f)
		case <-time.After(3 * time.Second):
			t.Fatalf("got %d frames, want 2", len(frames))
		}
	}
	ctrl, ok := frames[0].(ControlFrame)
	if !ok || ctrl.Signal != SignalInterrupt {
		t.Errorf("first frame = %#v, want interrupt signal", frames[0])
	}
	if _, ok := frames[1].(InterimTranscriptFrame); !ok {
		t.Errorf("second frame = %#v, want interim transcript", frames[1])
	}
	if got := interrupts.Generation(); got != 1 {
		t.Errorf("generation = %d, want 1", got)
	}

	close(in)
	if err := <-errCh; err != nil {
		t.Fatalf("stage error: %v", err)
	}
}
