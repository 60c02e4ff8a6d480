package repositories

import "context"

// AudioConfig describes the audio a recognition stream will receive.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// Recognition is one hypothesis emitted by a recognition stream. Interim
// results may be revised; a final result closes the utterance.
type Recognition struct {
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence"`
}

// RecognitionStream is a live speech recognition connection. Write feeds
// raw audio; Events delivers hypotheses until Close.
type RecognitionStream interface {
	Write(audio []byte) error
	Events() <-chan Recognition
	Close() error
}

// SpeechToText abstracts a streaming speech recognition provider.
type SpeechToText interface {
	Provider() string
	// Start opens a recognition stream for one call. The stream stays open
	// until Close or ctx cancellation.
	Start(ctx context.Context, config AudioConfig) (RecognitionStream, error)
	// AudioSeconds reports the total audio duration streamed so far.
	AudioSeconds() float64
}
