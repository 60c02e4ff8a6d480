package completion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
	"github.com/fleetline/dispatchvoice/internal/cost"
	"github.com/fleetline/dispatchvoice/internal/metrics"
	"github.com/fleetline/dispatchvoice/internal/pipeline"
)

// Finalizer persists the outcome of a finished call: the call record is
// updated with its terminal status and transcript, and billable calls get
// a results row with the cost breakdown.
type Finalizer struct {
	store  repositories.CallStore
	logger *zap.Logger
}

var _ pipeline.Finalizer = (*Finalizer)(nil)

func NewFinalizer(store repositories.CallStore, logger *zap.Logger) *Finalizer {
	return &Finalizer{store: store, logger: logger}
}

func (f *Finalizer) Finalize(ctx context.Context, session *entities.Session) error {
	snap := session.Snapshot()

	call, err := f.store.FindCallBySessionID(ctx, snap.ID)
	if err != nil {
		return fmt.Errorf("looking up call for session %s: %w", snap.ID, err)
	}

	transcript := FormatTranscript(snap.Transcript)
	duration := session.Duration().Seconds()
	status := entities.CallStatusCompleted
	if snap.State == entities.SessionStateFailed {
		status = entities.CallStatusFailed
	}
	endedAt := snap.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}

	update := entities.CallUpdate{
		Status:          &status,
		Transcript:      &transcript,
		DurationSeconds: &duration,
		EndedAt:         &endedAt,
	}
	if snap.LastError != "" {
		msg := snap.LastError
		update.ErrorMessage = &msg
	}
	if err := f.store.UpdateCall(ctx, call.ID, update); err != nil {
		return fmt.Errorf("updating call %s: %w", call.ID, err)
	}

	// A call that never went active has no duration and nothing to bill.
	if duration <= 0 {
		f.logger.Info("call never connected, skipping results",
			zap.String("call_id", call.ID),
			zap.String("session_id", snap.ID))
		return nil
	}

	usage := cost.EstimateUsage(cost.Usage{
		DurationSeconds:  duration,
		AudioSeconds:     snap.Metrics.AudioSeconds,
		Characters:       snap.Metrics.CharactersSynth,
		PromptTokens:     snap.Metrics.PromptTokens,
		CompletionTokens: snap.Metrics.CompletionTokens,
	})
	breakdown := cost.Calculate(session.Config(), usage)

	metrics.CallCostUSD.WithLabelValues("stt").Add(breakdown.STT)
	metrics.CallCostUSD.WithLabelValues("tts").Add(breakdown.TTS)
	metrics.CallCostUSD.WithLabelValues("llm").Add(breakdown.LLM)
	metrics.CallCostUSD.WithLabelValues("transport").Add(breakdown.Transport)

	results := &entities.CallResults{
		CallID:          call.ID,
		SessionID:       snap.ID,
		Transcript:      transcript,
		DurationSeconds: duration,
		Cost:            breakdown,
		CreatedAt:       time.Now(),
	}
	if err := f.store.UpsertCallResults(ctx, results); err != nil {
		return fmt.Errorf("persisting results for call %s: %w", call.ID, err)
	}

	f.logger.Info("call finalized",
		zap.String("call_id", call.ID),
		zap.String("session_id", snap.ID),
		zap.String("status", string(status)),
		zap.Float64("duration_seconds", duration),
		zap.Float64("cost_usd", breakdown.Total))
	return nil
}
