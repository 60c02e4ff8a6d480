package entities

import (
	"sync"
	"time"
)

// SessionState is the lifecycle state of a call session.
type SessionState string

const (
	SessionStateCreated    SessionState = "created"
	SessionStateConnecting SessionState = "connecting"
	SessionStateActive     SessionState = "active"
	SessionStateCompleted  SessionState = "completed"
	SessionStateFailed     SessionState = "failed"
)

// Terminal reports whether no further transitions are legal from s.
func (s SessionState) Terminal() bool {
	return s == SessionStateCompleted || s == SessionStateFailed
}

// MessageRole identifies the speaker of a transcript entry.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// TranscriptEntry is one utterance captured during a call. Entries are
// append-only and ordered by capture time.
type TranscriptEntry struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// SessionMetrics accumulates the usage counters a call consumed, used for
// cost attribution after the call ends.
type SessionMetrics struct {
	AudioSeconds     float64 `json:"audio_seconds"`
	CharactersSynth  int     `json:"characters_synthesized"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
}

// Session is the live record of one voice call: its lifecycle state, the
// transcript captured so far, and the provider recipe it was assembled
// with. All methods are safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	id         string
	callID     string
	config     PipelineConfig
	state      SessionState
	transcript []TranscriptEntry
	metrics    SessionMetrics
	lastError  string
	createdAt  time.Time
	startedAt  time.Time
	endedAt    time.Time
}

// SessionSnapshot is an immutable copy of a session's observable state.
type SessionSnapshot struct {
	ID         string            `json:"session_id"`
	CallID     string            `json:"call_id,omitempty"`
	State      SessionState      `json:"state"`
	Transcript []TranscriptEntry `json:"transcript"`
	Metrics    SessionMetrics    `json:"metrics"`
	LastError  string            `json:"last_error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  time.Time         `json:"started_at,omitempty"`
	EndedAt    time.Time         `json:"ended_at,omitempty"`
}

// NewSession creates a session in the created state.
func NewSession(id, callID string, config PipelineConfig) *Session {
	return &Session{
		id:         id,
		callID:     callID,
		config:     config,
		state:      SessionStateCreated,
		transcript: make([]TranscriptEntry, 0, 16),
		createdAt:  time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) CallID() string { return s.callID }

func (s *Session) Config() PipelineConfig { return s.config }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

var legalTransitions = map[SessionState][]SessionState{
	SessionStateCreated:    {SessionStateConnecting, SessionStateFailed},
	SessionStateConnecting: {SessionStateActive, SessionStateCompleted, SessionStateFailed},
	SessionStateActive:     {SessionStateCompleted, SessionStateFailed},
}

// Transition moves the session to next, returning InvalidTransitionError
// when the move is not legal from the current state.
func (s *Session) Transition(next SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(next)
}

func (s *Session) transitionLocked(next SessionState) error {
	for _, allowed := range legalTransitions[s.state] {
		if allowed == next {
			s.state = next
			switch next {
			case SessionStateActive:
				s.startedAt = time.Now()
			case SessionStateCompleted, SessionStateFailed:
				s.endedAt = time.Now()
			}
			return nil
		}
	}
	return &InvalidTransitionError{SessionID: s.id, From: s.state, To: next}
}

// Fail moves the session to failed and records the cause. Transcript and
// metrics captured so far are preserved.
func (s *Session) Fail(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(SessionStateFailed); err != nil {
		return err
	}
	if cause != nil {
		s.lastError = cause.Error()
	}
	return nil
}

// AppendTranscript records one utterance. Appends after a terminal state
// are rejected so a finalized transcript can never change.
func (s *Session) AppendTranscript(role MessageRole, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return &InvalidTransitionError{SessionID: s.id, From: s.state, To: s.state}
	}
	s.transcript = append(s.transcript, TranscriptEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	return nil
}

// AddMetrics accumulates usage counters onto the session.
func (s *Session) AddMetrics(delta SessionMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.AudioSeconds += delta.AudioSeconds
	s.metrics.CharactersSynth += delta.CharactersSynth
	s.metrics.PromptTokens += delta.PromptTokens
	s.metrics.CompletionTokens += delta.CompletionTokens
}

// Duration returns how long the session was active. Zero when the call
// never reached the active state.
func (s *Session) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startedAt.IsZero() {
		return 0
	}
	end := s.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.startedAt)
}

// Snapshot returns a consistent copy of the session's observable state.
// The transcript slice is copied so callers can never mutate the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transcript := make([]TranscriptEntry, len(s.transcript))
	copy(transcript, s.transcript)
	return SessionSnapshot{
		ID:         s.id,
		CallID:     s.callID,
		State:      s.state,
		Transcript: transcript,
		Metrics:    s.metrics,
		LastError:  s.lastError,
		CreatedAt:  s.createdAt,
		StartedAt:  s.startedAt,
		EndedAt:    s.endedAt,
	}
}
