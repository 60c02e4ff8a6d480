package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/fleetline/dispatchvoice/adapters/llm"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

func TestSplitSentence(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		sentence string
		rest     string
		found    bool
	}{
		{"period then space", "Hello there. More text", "Hello there. ", "More text", true},
		{"exclamation", "Great! Keep going", "Great! ", "Keep going", true},
		{"question", "Ready? Yes", "Ready? ", "Yes", true},
		{"terminator at edge waits", "Hello there.", "", "", false},
		{"decimal number not split", "Pi is 3.14159 roughly", "", "", false},
		{"no terminator", "still streaming", "", "", false},
		{"empty", "", "", "", false},
		{"multiple spaces consumed", "Done.  Next", "Done.  ", "Next", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentence, rest, found := splitSentence(tt.in)
			if sentence != tt.sentence || rest != tt.rest || found != tt.found {
				t.Errorf("splitSentence(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.in, sentence, rest, found, tt.sentence, tt.rest, tt.found)
			}
		})
	}
}

func TestSplitSentenceChunksConcatenate(t *testing.T) {
	text := "First sentence. Second one! And a third? Tail without end"
	var rebuilt strings.Builder
	remaining := text
	for {
		sentence, rest, found := splitSentence(remaining)
		if !found {
			break
		}
		rebuilt.WriteString(sentence)
		remaining = rest
	}
	rebuilt.WriteString(remaining)
	if rebuilt.String() != text {
		t.Errorf("chunks do not concatenate back: %q", rebuilt.String())
	}
}

func runStage(t *testing.T, stage Stage, frames ...Frame) []Frame {
	t.Helper()
	in := make(chan Frame, len(frames))
	for _, f := range frames {
		in <- f
	}
	close(in)
	out := make(chan Frame, 128)

	done := make(chan error, 1)
	go func() {
		err := stage.Run(context.Background(), in, out)
		close(out)
		done <- err
	}()

	var collected []Frame
	for f := range out {
		collected = append(collected, f)
	}
	if err := <-done; err != nil {
		t.Fatalf("%s stage: %v", stage.Name(), err)
	}
	return collected
}

func TestRespondStageGeneratesOnFinalTranscript(t *testing.T) {
	conversation := NewConversation("You are a dispatcher.")
	conversation.Append(repositories.UserRole, "I'm two hours out.")
	model := llm.NewMock("Copy that. I'll update the broker.")
	stage := NewRespondStage(model, conversation, zaptest.NewLogger(t))

	frames := runStage(t, stage, FinalTranscriptFrame{Text: "I'm two hours out.", Confidence: 0.92})

	if _, ok := frames[0].(FinalTranscriptFrame); !ok {
		t.Fatalf("final transcript not forwarded first, got %T", frames[0])
	}
	var text strings.Builder
	sawEnd := false
	for _, f := range frames[1:] {
		switch v := f.(type) {
		case TextFrame:
			if sawEnd {
				t.Error("text frame after end of response")
			}
			text.WriteString(v.Text)
		case ControlFrame:
			if v.Signal == SignalEndOfResponse {
				sawEnd = true
			}
		}
	}
	if !sawEnd {
		t.Error("missing end-of-response control frame")
	}
	if got := text.String(); got != "Copy that. I'll update the broker." {
		t.Errorf("reassembled response = %q", got)
	}
	if model.Calls() != 1 {
		t.Errorf("llm called %d times", model.Calls())
	}
	if len(model.Histories) != 1 || model.Histories[0][0].Role != repositories.SystemRole {
		t.Errorf("history missing system prompt: %+v", model.Histories)
	}
}

func TestRespondStageIgnoresEmptyFinals(t *testing.T) {
	conversation := NewConversation("")
	model := llm.NewMock("should not run")
	stage := NewRespondStage(model, conversation, zaptest.NewLogger(t))

	runStage(t, stage, FinalTranscriptFrame{Text: "   "}, InterimTranscriptFrame{Text: "uh"})

	if model.Calls() != 0 {
		t.Errorf("llm called %d times for blank input", model.Calls())
	}
}

func TestRespondStageSurfacesProviderError(t *testing.T) {
	conversation := NewConversation("")
	conversation.Append(repositories.UserRole, "hello")
	model := llm.NewMock()
	model.StartErr = errors.New("rate limited")
	stage := NewRespondStage(model, conversation, zaptest.NewLogger(t))

	in := make(chan Frame, 1)
	in <- FinalTranscriptFrame{Text: "hello"}
	close(in)
	out := make(chan Frame, 16)
	err := stage.Run(context.Background(), in, out)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected provider error, got %v", err)
	}
}
