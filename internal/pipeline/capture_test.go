package pipeline

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/fleetline/dispatchvoice/domain/entities"
)

type recordingAppender struct {
	entries []entities.TranscriptEntry
	err     error
}

func (r *recordingAppender) AppendTranscript(role entities.MessageRole, content string) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entities.TranscriptEntry{Role: role, Content: content})
	return nil
}

func TestUserCaptureRecordsFinalsOnly(t *testing.T) {
	sink := &recordingAppender{}
	stage := NewUserCaptureStage(sink, zaptest.NewLogger(t))

	frames := runStage(t, stage,
		InterimTranscriptFrame{Text: "I'm abo"},
		InterimTranscriptFrame{Text: "I'm about two"},
		FinalTranscriptFrame{Text: "I'm about two hours out."},
		AudioFrame{Data: []byte{1, 2}},
		FinalTranscriptFrame{Text: "  "},
	)

	if len(sink.entries) != 1 {
		t.Fatalf("captured %d entries, want 1", len(sink.entries))
	}
	if sink.entries[0].Role != entities.MessageRoleUser || sink.entries[0].Content != "I'm about two hours out." {
		t.Errorf("entry = %+v", sink.entries[0])
	}
	// Every inbound frame is forwarded untouched.
	if len(frames) != 5 {
		t.Errorf("forwarded %d frames, want 5", len(frames))
	}
}

func TestUserCaptureSwallowsAppendErrors(t *testing.T) {
	sink := &recordingAppender{err: errors.New("session already terminal")}
	stage := NewUserCaptureStage(sink, zaptest.NewLogger(t))

	frames := runStage(t, stage, FinalTranscriptFrame{Text: "hello"})
	if len(frames) != 1 {
		t.Errorf("append failure must not disturb the frame flow, got %d frames", len(frames))
	}
}

func TestAssistantCaptureAssemblesResponse(t *testing.T) {
	sink := &recordingAppender{}
	stage := NewAssistantCaptureStage(sink, zaptest.NewLogger(t))

	runStage(t, stage,
		TextFrame{Text: "Copy that. "},
		TextFrame{Text: "I'll update the broker."},
		ControlFrame{Signal: SignalEndOfResponse},
		TextFrame{Text: "Anything else?"},
		ControlFrame{Signal: SignalEndOfResponse},
	)

	if len(sink.entries) != 2 {
		t.Fatalf("captured %d entries, want 2", len(sink.entries))
	}
	if sink.entries[0].Content != "Copy that. I'll update the broker." {
		t.Errorf("first entry = %q", sink.entries[0].Content)
	}
	if sink.entries[1].Content != "Anything else?" {
		t.Errorf("second entry = %q", sink.entries[1].Content)
	}
	for _, e := range sink.entries {
		if e.Role != entities.MessageRoleAssistant {
			t.Errorf("role = %q", e.Role)
		}
	}
}

func TestAssistantCaptureFlushesOnStreamClose(t *testing.T) {
	sink := &recordingAppender{}
	stage := NewAssistantCaptureStage(sink, zaptest.NewLogger(t))

	// Stream ends mid-response; the partial text must still be captured.
	runStage(t, stage, TextFrame{Text: "Partial answer"})

	if len(sink.entries) != 1 || sink.entries[0].Content != "Partial answer" {
		t.Errorf("entries = %+v", sink.entries)
	}
}
