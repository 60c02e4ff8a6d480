package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
	"github.com/fleetline/dispatchvoice/internal/metrics"
)

// Finalizer persists a finished session. Called exactly once per call,
// after the pipeline has fully stopped and the session is terminal.
type Finalizer interface {
	Finalize(ctx context.Context, session *entities.Session) error
}

// Orchestrator drives one call end to end: it connects the transport,
// runs the stage chain, and finalizes the session when the call ends,
// whatever ended it.
type Orchestrator struct {
	session    *entities.Session
	transport  repositories.Transport
	components *Components
	finalizer  Finalizer
	logger     *zap.Logger

	drainOnce sync.Once
	drainCh   chan struct{}
	doneCh    chan struct{}

	mu           sync.Mutex
	runErr       error
	started      bool
	conversation *Conversation
}

func NewOrchestrator(
	session *entities.Session,
	transport repositories.Transport,
	components *Components,
	finalizer Finalizer,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		session:    session,
		transport:  transport,
		components: components,
		finalizer:  finalizer,
		logger:     logger.With(zap.String("session_id", session.ID())),
		drainCh:    make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the call to completion. It blocks until the session is
// terminal and finalization has finished; callers typically run it in its
// own goroutine and watch Done.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.New("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	defer close(o.doneCh)

	runErr := o.run(ctx)

	o.collectUsage()
	o.restoreTranscript()
	o.settle(runErr)

	// Finalization happens after the terminal transition, synchronously,
	// so a returned Start means the durable store has been written.
	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := o.finalizer.Finalize(finCtx, o.session); err != nil {
		o.logger.Error("finalization failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	snap := o.session.Snapshot()
	metrics.ActiveSessions.Dec()
	metrics.CallsFinalized.WithLabelValues(string(snap.State)).Inc()
	metrics.CallDuration.Observe(o.session.Duration().Seconds())
	o.logger.Info("call finished",
		zap.String("state", string(snap.State)),
		zap.Int("transcript_entries", len(snap.Transcript)),
		zap.Duration("duration", o.session.Duration()))

	o.mu.Lock()
	o.runErr = runErr
	o.mu.Unlock()
	return runErr
}

func (o *Orchestrator) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := o.session.Transition(entities.SessionStateConnecting); err != nil {
		return err
	}
	defer o.transport.Close()

	// An end request while the transport is still waiting for its remote
	// peer aborts the wait instead of running out the attach timer.
	startCtx, startCancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-o.drainCh:
			startCancel()
		case <-startCtx.Done():
		}
	}()
	err := o.transport.Start(startCtx)
	startCancel()
	if err != nil {
		select {
		case <-o.drainCh:
			return nil
		default:
		}
		return fmt.Errorf("starting transport: %w", err)
	}
	if err := o.session.Transition(entities.SessionStateActive); err != nil {
		return err
	}

	// Remote hangup drains the pipeline the same way an API end does.
	go func() {
		select {
		case <-o.transport.Done():
			o.Drain("remote_disconnect")
		case <-ctx.Done():
		}
	}()

	source := make(chan Frame, frameBuffer)
	go o.pump(ctx, source)

	pc := o.session.Config()
	conversation := NewConversation(pc.SystemPrompt)
	o.mu.Lock()
	o.conversation = conversation
	o.mu.Unlock()
	var interrupts *Interrupter
	if pc.AllowInterruptions {
		interrupts = NewInterrupter()
	}
	chain := New(o.logger,
		NewRecognizeStage(o.components.STT, repositories.AudioConfig{
			SampleRate: defaultSampleRate,
			Encoding:   defaultEncoding,
			Language:   pc.STT.Language,
		}, interrupts, o.logger),
		NewUserCaptureStage(o.session, o.logger),
		NewUserAggregateStage(conversation),
		NewRespondStage(o.components.LLM, conversation, o.logger),
		NewAssistantCaptureStage(o.session, o.logger),
		NewAssistantAggregateStage(conversation),
		NewSynthesizeStage(o.components.TTS, defaultSampleRate, interrupts, o.logger),
	)

	return chain.Run(ctx, source, func(f Frame) error {
		audio, isAudio := f.(AudioFrame)
		if !isAudio {
			return nil
		}
		if err := o.transport.Output(audio.Data); err != nil {
			return fmt.Errorf("writing audio to transport: %w", err)
		}
		return nil
	})
}

// pump feeds the pipeline source: the greeting first, then inbound audio
// until the transport closes or a drain is requested. Closing the source
// lets every stage flush in order before the pipeline stops.
func (o *Orchestrator) pump(ctx context.Context, source chan<- Frame) {
	defer close(source)

	if greeting := o.session.Config().Greeting; greeting != "" {
		select {
		case source <- TextFrame{Text: greeting}:
		case <-ctx.Done():
			return
		}
		select {
		case source <- ControlFrame{Signal: SignalEndOfResponse}:
		case <-ctx.Done():
			return
		}
	}

	for {
		select {
		case chunk, ok := <-o.transport.Input():
			if !ok {
				return
			}
			select {
			case source <- AudioFrame{Data: chunk, SampleRate: defaultSampleRate}:
			case <-ctx.Done():
				return
			case <-o.drainCh:
				return
			}
		case <-o.drainCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Drain requests a graceful shutdown: the audio source closes, in-flight
// frames flush through every stage, and the session finalizes. Safe to
// call from any goroutine, any number of times; only the first takes
// effect.
func (o *Orchestrator) Drain(reason string) {
	o.drainOnce.Do(func() {
		o.logger.Info("draining pipeline", zap.String("reason", reason))
		close(o.drainCh)
	})
}

// Done is closed once the session is terminal and finalized.
func (o *Orchestrator) Done() <-chan struct{} { return o.doneCh }

// Err returns the run error after Done is closed.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runErr
}

// collectUsage copies provider counters onto the session for cost
// attribution.
func (o *Orchestrator) collectUsage() {
	usage := o.components.LLM.Usage()
	o.session.AddMetrics(entities.SessionMetrics{
		AudioSeconds:     o.components.STT.AudioSeconds(),
		CharactersSynth:  o.components.TTS.CharactersSynthesized(),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	})
}

// restoreTranscript backfills the session transcript from the LLM
// conversation when live capture produced nothing, so a persisted call
// keeps its dialog even if a capture stage was starved. Runs before the
// terminal transition; appends are rejected afterwards.
func (o *Orchestrator) restoreTranscript() {
	o.mu.Lock()
	conversation := o.conversation
	o.mu.Unlock()
	if conversation == nil || len(o.session.Snapshot().Transcript) > 0 {
		return
	}
	for _, msg := range conversation.History() {
		var role entities.MessageRole
		switch msg.Role {
		case repositories.UserRole:
			role = entities.MessageRoleUser
		case repositories.AssistantRole:
			role = entities.MessageRoleAssistant
		default:
			continue
		}
		if err := o.session.AppendTranscript(role, msg.Content); err != nil {
			return
		}
	}
}

// settle moves the session to its terminal state. A clean drain
// completes; anything else fails with the cause preserved.
func (o *Orchestrator) settle(runErr error) {
	if o.session.State().Terminal() {
		return
	}
	if runErr == nil || errors.Is(runErr, context.Canceled) {
		if err := o.session.Transition(entities.SessionStateCompleted); err != nil {
			o.logger.Error("completing session", zap.Error(err))
		}
		return
	}
	if err := o.session.Fail(runErr); err != nil {
		o.logger.Error("failing session", zap.Error(err))
	}
}
