package stt

import (
	"context"
	"sync"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// Mock is an in-memory SpeechToText used in tests. Written audio is
// discarded; tests drive recognition output through Emit.
type Mock struct {
	StartErr error

	mu           sync.Mutex
	audioSeconds float64
	streams      []*MockStream
}

var _ repositories.SpeechToText = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Provider() string { return "mock_stt" }

func (m *Mock) AudioSeconds() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioSeconds
}

func (m *Mock) Start(ctx context.Context, config repositories.AudioConfig) (repositories.RecognitionStream, error) {
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	s := &MockStream{
		parent:     m,
		sampleRate: config.SampleRate,
		events:     make(chan repositories.Recognition, 16),
	}
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Emit pushes a recognition event to every open stream.
func (m *Mock) Emit(rec repositories.Recognition) {
	m.mu.Lock()
	streams := make([]*MockStream, len(m.streams))
	copy(streams, m.streams)
	m.mu.Unlock()
	for _, s := range streams {
		s.emit(rec)
	}
}

type MockStream struct {
	parent     *Mock
	sampleRate int
	events     chan repositories.Recognition

	mu     sync.Mutex
	closed bool
}

func (s *MockStream) Write(audio []byte) error {
	s.parent.mu.Lock()
	s.parent.audioSeconds += float64(len(audio)) / float64(s.sampleRate*2)
	s.parent.mu.Unlock()
	return nil
}

func (s *MockStream) Events() <-chan repositories.Recognition { return s.events }

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *MockStream) emit(rec repositories.Recognition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- rec
}
