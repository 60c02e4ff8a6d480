package store

import (
	"context"
	"sync"

	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// Memory is an in-process CallStore and AgentConfigSource. It backs
// tests and local development where no Supabase or Mongo instance is
// reachable.
type Memory struct {
	mu      sync.RWMutex
	calls   map[string]*entities.CallRecord
	updates map[string]entities.CallUpdate
	results map[string]*entities.CallResults
	agents  map[string]*entities.AgentProfile
}

var (
	_ repositories.CallStore         = (*Memory)(nil)
	_ repositories.AgentConfigSource = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		calls:   make(map[string]*entities.CallRecord),
		updates: make(map[string]entities.CallUpdate),
		results: make(map[string]*entities.CallResults),
		agents:  make(map[string]*entities.AgentProfile),
	}
}

func (m *Memory) CreateCall(_ context.Context, call *entities.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[call.ID]; ok {
		return &entities.PersistenceError{Op: "create_call", Key: call.ID, Err: errDuplicate}
	}
	clone := *call
	m.calls[call.ID] = &clone
	return nil
}

func (m *Memory) GetCall(_ context.Context, id string) (*entities.CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	call, ok := m.calls[id]
	if !ok {
		return nil, &entities.PersistenceError{Op: "get_call", Key: id, Err: repositories.ErrNotFound}
	}
	clone := *call
	return &clone, nil
}

func (m *Memory) FindCallBySessionID(_ context.Context, sessionID string) (*entities.CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, call := range m.calls {
		if call.SessionID == sessionID {
			clone := *call
			return &clone, nil
		}
	}
	return nil, &entities.PersistenceError{Op: "find_call", Key: sessionID, Err: repositories.ErrNotFound}
}

func (m *Memory) UpdateCall(_ context.Context, id string, update entities.CallUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[id]
	if !ok {
		return &entities.PersistenceError{Op: "update_call", Key: id, Err: repositories.ErrNotFound}
	}
	if update.Status != nil {
		call.Status = *update.Status
	}
	if update.EndedAt != nil {
		endedAt := *update.EndedAt
		call.EndedAt = &endedAt
	}
	m.updates[id] = update
	return nil
}

func (m *Memory) UpsertCallResults(_ context.Context, results *entities.CallResults) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *results
	m.results[results.CallID] = &clone
	return nil
}

func (m *Memory) GetAgent(_ context.Context, id string) (*entities.AgentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[id]
	if !ok {
		return nil, &entities.PersistenceError{Op: "get_agent", Key: id, Err: repositories.ErrNotFound}
	}
	clone := *agent
	return &clone, nil
}

// PutAgent registers an agent definition. Used by tests and by local
// setups that configure agents statically.
func (m *Memory) PutAgent(agent *entities.AgentProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *agent
	m.agents[agent.ID] = &clone
}

// Calls returns a copy of every stored call record.
func (m *Memory) Calls() []entities.CallRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]entities.CallRecord, 0, len(m.calls))
	for _, call := range m.calls {
		records = append(records, *call)
	}
	return records
}

// LastUpdate returns the most recent update applied to a call, and
// whether one was applied at all.
func (m *Memory) LastUpdate(id string) (entities.CallUpdate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	update, ok := m.updates[id]
	return update, ok
}

// Results returns the stored results row for a call, or nil.
func (m *Memory) Results(callID string) *entities.CallResults {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results, ok := m.results[callID]
	if !ok {
		return nil
	}
	clone := *results
	return &clone
}
