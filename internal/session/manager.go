package session

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/internal/metrics"
)

// Manager is the in-memory registry of call sessions. Terminal sessions
// are retained for lookup until evicted.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*entities.Session),
		logger:   logger,
	}
}

// Create registers a new session. Duplicate ids are rejected.
func (m *Manager) Create(id, callID string, config entities.PipelineConfig) (*entities.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[id]; exists {
		return nil, fmt.Errorf("session %s already exists", id)
	}
	s := entities.NewSession(id, callID, config)
	m.sessions[id] = s
	metrics.ActiveSessions.Inc()
	m.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("call_id", callID),
		zap.String("transport", string(config.Transport)))
	return s, nil
}

// Get returns the session or nil when unknown.
func (m *Manager) Get(id string) *entities.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// MarkConnecting moves a session to connecting.
func (m *Manager) MarkConnecting(id string) error {
	return m.transition(id, entities.SessionStateConnecting)
}

// MarkActive moves a session to active.
func (m *Manager) MarkActive(id string) error {
	return m.transition(id, entities.SessionStateActive)
}

// MarkCompleted moves a session to completed.
func (m *Manager) MarkCompleted(id string) error {
	if err := m.transition(id, entities.SessionStateCompleted); err != nil {
		return err
	}
	metrics.ActiveSessions.Dec()
	return nil
}

// MarkFailed moves a session to failed and records the cause.
func (m *Manager) MarkFailed(id string, cause error) error {
	s := m.Get(id)
	if s == nil {
		return fmt.Errorf("session %s not found", id)
	}
	if err := s.Fail(cause); err != nil {
		return err
	}
	metrics.ActiveSessions.Dec()
	m.logger.Warn("session failed",
		zap.String("session_id", id),
		zap.Error(cause))
	return nil
}

func (m *Manager) transition(id string, next entities.SessionState) error {
	s := m.Get(id)
	if s == nil {
		return fmt.Errorf("session %s not found", id)
	}
	if err := s.Transition(next); err != nil {
		return err
	}
	m.logger.Info("session transitioned",
		zap.String("session_id", id),
		zap.String("state", string(next)))
	return nil
}

// ListActive returns snapshots of all non-terminal sessions.
func (m *Manager) ListActive() []entities.SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entities.SessionSnapshot
	for _, s := range m.sessions {
		if snap := s.Snapshot(); !snap.State.Terminal() {
			out = append(out, snap)
		}
	}
	return out
}

// EvictOld removes terminal sessions that ended before the cutoff.
// Non-terminal sessions are never evicted.
func (m *Manager) EvictOld(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		snap := s.Snapshot()
		if snap.State.Terminal() && !snap.EndedAt.IsZero() && snap.EndedAt.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Info("evicted finished sessions", zap.Int("count", evicted))
	}
	return evicted
}
