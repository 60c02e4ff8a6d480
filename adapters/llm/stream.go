package llm

import (
	"context"
	"sync"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// stream is the CompletionStream shared by the provider clients. The
// producing goroutine pushes deltas, records a terminal error if one
// occurred, and closes the channel.
type stream struct {
	deltas chan string

	mu  sync.Mutex
	err error
}

var _ repositories.CompletionStream = (*stream)(nil)

func newStream() *stream {
	return &stream{deltas: make(chan string, 16)}
}

func (s *stream) Deltas() <-chan string { return s.deltas }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stream) send(ctx context.Context, delta string) bool {
	if delta == "" {
		return true
	}
	select {
	case s.deltas <- delta:
		return true
	case <-ctx.Done():
		s.fail(ctx.Err())
		return false
	}
}
