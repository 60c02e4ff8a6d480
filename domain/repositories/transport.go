package repositories

import (
	"context"

	"github.com/fleetline/dispatchvoice/domain/entities"
)

// Transport carries audio between the caller and the pipeline. Input
// delivers inbound audio chunks; Output accepts synthesized audio for
// playback. Done is closed when the remote side disconnects.
type Transport interface {
	Kind() entities.TransportKind
	Start(ctx context.Context) error
	Input() <-chan []byte
	Output(audio []byte) error
	Done() <-chan struct{}
	Close() error
}

// RoomProvisioner acquires a transport endpoint from an upstream room
// provider before a session is committed.
type RoomProvisioner interface {
	ProvisionRoom(ctx context.Context, sessionID string) (*entities.RoomGrant, error)
}
