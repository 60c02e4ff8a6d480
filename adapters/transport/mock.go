package transport

import (
	"context"
	"sync"

	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// Mock is an in-memory Transport for tests. Tests feed inbound audio
// with Feed and read captured outbound audio with Sent.
type Mock struct {
	StartErr error

	input chan []byte
	done  chan struct{}

	feedOnce sync.Once
	doneOnce sync.Once

	mu   sync.Mutex
	sent [][]byte
}

var _ repositories.Transport = (*Mock)(nil)

func NewMockTransport() *Mock {
	return &Mock{
		input: make(chan []byte, 256),
		done:  make(chan struct{}),
	}
}

func (m *Mock) Kind() entities.TransportKind { return entities.TransportWebsocket }

func (m *Mock) Start(ctx context.Context) error { return m.StartErr }

func (m *Mock) Input() <-chan []byte { return m.input }

func (m *Mock) Output(audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk := make([]byte, len(audio))
	copy(chunk, audio)
	m.sent = append(m.sent, chunk)
	return nil
}

func (m *Mock) Done() <-chan struct{} { return m.done }

func (m *Mock) Close() error {
	m.doneOnce.Do(func() { close(m.done) })
	return nil
}

// Feed pushes one inbound audio chunk.
func (m *Mock) Feed(audio []byte) {
	m.input <- audio
}

// EndInput closes the inbound audio stream, as a disconnect would.
func (m *Mock) EndInput() {
	m.feedOnce.Do(func() { close(m.input) })
}

// Sent returns the outbound audio captured so far.
func (m *Mock) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// Hangup simulates the remote side disconnecting.
func (m *Mock) Hangup() {
	m.doneOnce.Do(func() { close(m.done) })
}
