package completion

import (
	"strings"

	"github.com/fleetline/dispatchvoice/domain/entities"
)

// FormatTranscript renders transcript entries as readable dialog, one
// paragraph per utterance with the speaker role uppercased.
func FormatTranscript(entries []entities.TranscriptEntry) string {
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(string(entry.Role)))
		b.WriteString(": ")
		b.WriteString(entry.Content)
	}
	return b.String()
}
