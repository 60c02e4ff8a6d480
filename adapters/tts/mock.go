package tts

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// Mock is an in-memory TextToSpeech used in tests. It emits one fixed
// audio chunk per synthesized text, or fails when Err is set.
type Mock struct {
	Chunk      []byte
	Err        error
	characters atomic.Int64
}

var _ repositories.TextToSpeech = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{Chunk: []byte("audio")}
}

func (m *Mock) Provider() string { return "mock_tts" }

func (m *Mock) CharactersSynthesized() int { return int(m.characters.Load()) }

func (m *Mock) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	m.characters.Add(int64(len(text)))
	out := make(chan []byte, 1)
	out <- m.Chunk
	close(out)
	return out, nil
}
