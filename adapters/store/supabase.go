package store

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

const (
	callsTable       = "calls"
	callResultsTable = "call_results"
	agentsTable      = "agent_configurations"
)

// Supabase persists calls, results, and agent definitions in Postgres
// through the Supabase REST layer.
type Supabase struct {
	client *supabase.Client
	logger *zap.Logger
}

var (
	_ repositories.CallStore         = (*Supabase)(nil)
	_ repositories.AgentConfigSource = (*Supabase)(nil)
)

func NewSupabase(url, apiKey string, logger *zap.Logger) (*Supabase, error) {
	if url == "" || apiKey == "" {
		return nil, &entities.ConfigurationError{Provider: "supabase", Reason: "SUPABASE_URL and SUPABASE_KEY are required"}
	}
	client, err := supabase.NewClient(url, apiKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &Supabase{client: client, logger: logger}, nil
}

func (s *Supabase) CreateCall(_ context.Context, call *entities.CallRecord) error {
	_, _, err := s.client.From(callsTable).Insert(call, false, "", "", "").Execute()
	if err != nil {
		return &entities.PersistenceError{Op: "create_call", Key: call.ID, Err: err}
	}
	return nil
}

func (s *Supabase) GetCall(_ context.Context, id string) (*entities.CallRecord, error) {
	return s.findCall("id", id, "get_call")
}

func (s *Supabase) FindCallBySessionID(_ context.Context, sessionID string) (*entities.CallRecord, error) {
	return s.findCall("session_id", sessionID, "find_call")
}

func (s *Supabase) findCall(column, value, op string) (*entities.CallRecord, error) {
	var rows []entities.CallRecord
	_, err := s.client.From(callsTable).
		Select("*", "", false).
		Eq(column, value).
		ExecuteTo(&rows)
	if err != nil {
		return nil, &entities.PersistenceError{Op: op, Key: value, Err: err}
	}
	if len(rows) == 0 {
		return nil, &entities.PersistenceError{Op: op, Key: value, Err: repositories.ErrNotFound}
	}
	return &rows[0], nil
}

func (s *Supabase) UpdateCall(_ context.Context, id string, update entities.CallUpdate) error {
	_, _, err := s.client.From(callsTable).
		Update(update, "", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return &entities.PersistenceError{Op: "update_call", Key: id, Err: err}
	}
	return nil
}

func (s *Supabase) UpsertCallResults(_ context.Context, results *entities.CallResults) error {
	_, _, err := s.client.From(callResultsTable).
		Insert(results, true, "call_id", "", "").
		Execute()
	if err != nil {
		return &entities.PersistenceError{Op: "upsert_results", Key: results.CallID, Err: err}
	}
	return nil
}

func (s *Supabase) GetAgent(_ context.Context, id string) (*entities.AgentProfile, error) {
	var rows []entities.AgentProfile
	_, err := s.client.From(agentsTable).
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return nil, &entities.PersistenceError{Op: "get_agent", Key: id, Err: err}
	}
	if len(rows) == 0 {
		return nil, &entities.PersistenceError{Op: "get_agent", Key: id, Err: repositories.ErrNotFound}
	}
	return &rows[0], nil
}
