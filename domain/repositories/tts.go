package repositories

import "context"

// TextToSpeech abstracts a streaming speech synthesis provider. The
// returned channel delivers audio chunks as they arrive and is closed
// when synthesis of the given text finishes.
type TextToSpeech interface {
	Provider() string
	ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error)
	// CharactersSynthesized reports the total characters synthesized so far.
	CharactersSynthesized() int
}
