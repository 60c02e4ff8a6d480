package completion

import (
	"testing"

	"github.com/fleetline/dispatchvoice/domain/entities"
)

func TestFormatTranscript(t *testing.T) {
	entries := []entities.TranscriptEntry{
		{Role: entities.MessageRoleAssistant, Content: "Hi Mike, this is dispatch calling about load 4501."},
		{Role: entities.MessageRoleUser, Content: "Hey, I'm about two hours out."},
		{Role: entities.MessageRoleAssistant, Content: "Great, I'll note the ETA. Drive safe."},
	}

	got := FormatTranscript(entries)
	want := "ASSISTANT: Hi Mike, this is dispatch calling about load 4501.\n\n" +
		"USER: Hey, I'm about two hours out.\n\n" +
		"ASSISTANT: Great, I'll note the ETA. Drive safe."
	if got != want {
		t.Errorf("formatted transcript mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatTranscriptEmpty(t *testing.T) {
	if got := FormatTranscript(nil); got != "" {
		t.Errorf("expected empty string for no entries, got %q", got)
	}
}

func TestFormatTranscriptSingleEntry(t *testing.T) {
	entries := []entities.TranscriptEntry{
		{Role: entities.MessageRoleUser, Content: "Hello?"},
	}
	if got := FormatTranscript(entries); got != "USER: Hello?" {
		t.Errorf("got %q", got)
	}
}
