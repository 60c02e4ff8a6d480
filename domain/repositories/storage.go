package repositories

import (
	"context"
	"errors"

	"github.com/fleetline/dispatchvoice/domain/entities"
)

// ErrNotFound reports a lookup that matched no stored row. Store
// implementations wrap it so callers can branch with errors.Is.
var ErrNotFound = errors.New("not found")

// CallStore defines durable persistence for call rows and their results.
type CallStore interface {
	CreateCall(ctx context.Context, call *entities.CallRecord) error
	GetCall(ctx context.Context, id string) (*entities.CallRecord, error)
	FindCallBySessionID(ctx context.Context, sessionID string) (*entities.CallRecord, error)
	UpdateCall(ctx context.Context, id string, update entities.CallUpdate) error
	// UpsertCallResults writes the post-call artifacts, replacing any
	// previous row for the same call.
	UpsertCallResults(ctx context.Context, results *entities.CallResults) error
}

// AgentConfigSource resolves agent definitions at trigger time.
type AgentConfigSource interface {
	GetAgent(ctx context.Context, id string) (*entities.AgentProfile, error)
}
