package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/adapters/transport"
	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
	"github.com/fleetline/dispatchvoice/internal/metrics"
	"github.com/fleetline/dispatchvoice/internal/pipeline"
	"github.com/fleetline/dispatchvoice/internal/session"
	"github.com/fleetline/dispatchvoice/internal/textproc"
	"github.com/fleetline/dispatchvoice/internal/wsbridge"
)

// ErrSessionNotFound reports an operation against a session id this
// process has never seen.
var ErrSessionNotFound = errors.New("session not found")

// TriggerRequest starts one outbound dispatch call.
type TriggerRequest struct {
	AgentID    string            `json:"agent_id"`
	DriverName string            `json:"driver_name"`
	LoadNumber string            `json:"load_number"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// TriggerResponse tells the caller how to join the call that was just
// set up.
type TriggerResponse struct {
	CallID        string                 `json:"call_id"`
	SessionID     string                 `json:"session_id"`
	Transport     entities.TransportKind `json:"transport"`
	RoomURL       string                 `json:"room_url,omitempty"`
	RoomToken     string                 `json:"room_token,omitempty"`
	WebsocketPath string                 `json:"websocket_path,omitempty"`
	OfferPath     string                 `json:"offer_path,omitempty"`
}

// pipelineBuilder assembles provider adapters from a pipeline recipe.
// Satisfied by *pipeline.Factory.
type pipelineBuilder interface {
	Build(ctx context.Context, pc entities.PipelineConfig) (*pipeline.Components, error)
}

// Service coordinates the trigger flow: agent resolution, prompt
// templating, transport provisioning, session creation, and launching
// the orchestrator that runs the call to completion.
type Service struct {
	agents      repositories.AgentConfigSource
	store       repositories.CallStore
	sessions    *session.Manager
	factory     pipelineBuilder
	finalizer   pipeline.Finalizer
	provisioner repositories.RoomProvisioner
	bridge      *wsbridge.Registry
	logger      *zap.Logger

	mu            sync.Mutex
	orchestrators map[string]*pipeline.Orchestrator
}

func NewService(
	agents repositories.AgentConfigSource,
	store repositories.CallStore,
	sessions *session.Manager,
	factory pipelineBuilder,
	finalizer pipeline.Finalizer,
	provisioner repositories.RoomProvisioner,
	bridge *wsbridge.Registry,
	logger *zap.Logger,
) *Service {
	return &Service{
		agents:        agents,
		store:         store,
		sessions:      sessions,
		factory:       factory,
		finalizer:     finalizer,
		provisioner:   provisioner,
		bridge:        bridge,
		logger:        logger,
		orchestrators: make(map[string]*pipeline.Orchestrator),
	}
}

// Trigger sets up and launches one call. Provisioning and adapter
// construction happen before any session state is committed, so a
// ProvisioningError or ConfigurationError leaves nothing behind and the
// whole trigger can be retried.
func (s *Service) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResponse, error) {
	agent, err := s.agents.GetAgent(ctx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("resolving agent %s: %w", req.AgentID, err)
	}

	vars := map[string]string{}
	for k, v := range req.Variables {
		vars[k] = v
	}
	if req.DriverName != "" {
		vars["driver_name"] = req.DriverName
	}
	if req.LoadNumber != "" {
		vars["load_number"] = req.LoadNumber
	}

	pc := agent.Config
	pc.SystemPrompt = textproc.FillTemplate(agent.SystemPrompt, vars)
	pc.Greeting = textproc.FillTemplate(agent.Greeting, vars)

	sessionID := uuid.NewString()
	callID := uuid.NewString()

	var grant *entities.RoomGrant
	if pc.Transport == entities.TransportDailyWebRTC {
		grant, err = s.provisioner.ProvisionRoom(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	components, err := s.factory.Build(ctx, pc)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Create(sessionID, callID, pc)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	record := &entities.CallRecord{
		ID:         callID,
		SessionID:  sessionID,
		AgentID:    agent.ID,
		DriverName: req.DriverName,
		LoadNumber: req.LoadNumber,
		Status:     entities.CallStatusPending,
		Variables:  vars,
		CreatedAt:  time.Now(),
	}
	if grant != nil {
		record.RoomURL = grant.RoomURL
	}
	if err := s.store.CreateCall(ctx, record); err != nil {
		if failErr := s.sessions.MarkFailed(sessionID, err); failErr != nil {
			s.logger.Error("marking session failed after store error", zap.Error(failErr))
		}
		return nil, fmt.Errorf("creating call record: %w", err)
	}

	tr, resp, err := s.buildTransport(sessionID, pc.Transport, grant)
	if err != nil {
		s.abortCommitted(ctx, sessionID, callID, err)
		return nil, err
	}
	resp.CallID = callID
	resp.SessionID = sessionID
	resp.Transport = pc.Transport

	orch := pipeline.NewOrchestrator(sess, tr, components, s.finalizer, s.logger)
	s.mu.Lock()
	s.orchestrators[sessionID] = orch
	s.mu.Unlock()

	go s.runCall(sessionID, orch)

	metrics.CallsTriggered.WithLabelValues(string(pc.Transport)).Inc()
	s.logger.Info("call triggered",
		zap.String("call_id", callID),
		zap.String("session_id", sessionID),
		zap.String("agent_id", agent.ID),
		zap.String("transport", string(pc.Transport)))
	return resp, nil
}

// abortCommitted rolls back a trigger that failed after the session and
// call record were committed: the session goes straight to failed and the
// call row records the cause, so nothing is left pending.
func (s *Service) abortCommitted(ctx context.Context, sessionID, callID string, cause error) {
	if err := s.sessions.MarkFailed(sessionID, cause); err != nil {
		s.logger.Error("marking session failed after trigger error",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	status := entities.CallStatusFailed
	msg := cause.Error()
	update := entities.CallUpdate{Status: &status, ErrorMessage: &msg}
	if err := s.store.UpdateCall(ctx, callID, update); err != nil {
		s.logger.Error("updating call record after trigger error",
			zap.String("call_id", callID), zap.Error(err))
	}
}

func (s *Service) buildTransport(sessionID string, kind entities.TransportKind, grant *entities.RoomGrant) (repositories.Transport, *TriggerResponse, error) {
	resp := &TriggerResponse{}
	switch kind {
	case entities.TransportWebsocket:
		t := transport.NewWebSocket(sessionID, s.logger)
		s.bridge.RegisterSocket(sessionID, t)
		resp.WebsocketPath = "/ws/" + sessionID
		return t, resp, nil
	case entities.TransportDailyWebRTC:
		t := transport.NewWebRTC(sessionID, s.logger)
		s.bridge.RegisterRTC(sessionID, t)
		resp.OfferPath = "/api/v1/calls/" + sessionID + "/offer"
		if grant != nil {
			resp.RoomURL = grant.RoomURL
			resp.RoomToken = grant.BotToken
		}
		return t, resp, nil
	default:
		return nil, nil, &entities.ConfigurationError{Provider: string(kind), Reason: "unsupported transport"}
	}
}

// runCall drives one orchestrator to completion and cleans up the
// process-local registrations afterwards. The trigger request's context
// has long since returned; the call runs on its own.
func (s *Service) runCall(sessionID string, orch *pipeline.Orchestrator) {
	if err := orch.Start(context.Background()); err != nil {
		s.logger.Warn("call ended with error",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	s.bridge.Remove(sessionID)
	s.mu.Lock()
	delete(s.orchestrators, sessionID)
	s.mu.Unlock()
}

// End requests a graceful hangup. Idempotent: ending a session that is
// already draining or finalized is a no-op.
func (s *Service) End(sessionID string) error {
	s.mu.Lock()
	orch, ok := s.orchestrators[sessionID]
	s.mu.Unlock()
	if ok {
		orch.Drain("api_end")
		return nil
	}
	if sess := s.sessions.Get(sessionID); sess != nil {
		// Already finished and unregistered.
		return nil
	}
	return ErrSessionNotFound
}

// Snapshot returns the current observable state of a session.
func (s *Service) Snapshot(sessionID string) (*entities.SessionSnapshot, error) {
	sess := s.sessions.Get(sessionID)
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	snap := sess.Snapshot()
	return &snap, nil
}
