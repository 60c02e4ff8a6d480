package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/fleetline/dispatchvoice/adapters/llm"
	"github.com/fleetline/dispatchvoice/adapters/stt"
	"github.com/fleetline/dispatchvoice/adapters/transport"
	"github.com/fleetline/dispatchvoice/adapters/tts"
	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

type countingFinalizer struct {
	mu            sync.Mutex
	calls         int
	terminalState entities.SessionState
	err           error
}

func (f *countingFinalizer) Finalize(_ context.Context, session *entities.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.terminalState = session.State()
	return f.err
}

func (f *countingFinalizer) stats() (int, entities.SessionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.terminalState
}

type callHarness struct {
	session   *entities.Session
	transport *transport.Mock
	stt       *stt.Mock
	tts       *tts.Mock
	llm       *llm.Mock
	finalizer *countingFinalizer
	orch      *Orchestrator
}

func newCallHarness(t *testing.T, pc entities.PipelineConfig, replies ...string) *callHarness {
	t.Helper()
	h := &callHarness{
		session:   entities.NewSession("sess-test", "call-test", pc),
		transport: transport.NewMockTransport(),
		stt:       stt.NewMock(),
		tts:       tts.NewMock(),
		llm:       llm.NewMock(replies...),
		finalizer: &countingFinalizer{},
	}
	h.orch = NewOrchestrator(h.session, h.transport, &Components{
		STT: h.stt,
		TTS: h.tts,
		LLM: h.llm,
	}, h.finalizer, zaptest.NewLogger(t))
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *callHarness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.orch.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("orchestrator did not finish")
	}
}

func TestOrchestratorRunsCallToCompletion(t *testing.T) {
	pc := entities.DefaultPipelineConfig()
	pc.SystemPrompt = "You are a freight dispatcher."
	pc.Greeting = "Hi Mike, checking in on load 7891-B."
	h := newCallHarness(t, pc, "Copy that. Thanks for the update.")

	go h.orch.Start(context.Background())

	// The greeting goes through synthesis before any caller audio.
	waitFor(t, "greeting audio", func() bool { return len(h.transport.Sent()) >= 1 })

	h.transport.Feed(make([]byte, 3200))
	h.stt.Emit(repositories.Recognition{Text: "I'm about two", Final: false, Confidence: 0.4})
	h.stt.Emit(repositories.Recognition{Text: "I'm about two hours out.", Final: true, Confidence: 0.93})

	waitFor(t, "assistant reply captured", func() bool {
		return len(h.session.Snapshot().Transcript) >= 3
	})
	waitFor(t, "reply audio", func() bool { return len(h.transport.Sent()) >= 2 })

	h.transport.EndInput()
	h.waitDone(t)

	if err := h.orch.Err(); err != nil {
		t.Fatalf("orchestrator error: %v", err)
	}
	snap := h.session.Snapshot()
	if snap.State != entities.SessionStateCompleted {
		t.Errorf("state = %q, want completed", snap.State)
	}

	if len(snap.Transcript) != 3 {
		t.Fatalf("transcript has %d entries: %+v", len(snap.Transcript), snap.Transcript)
	}
	if snap.Transcript[0].Role != entities.MessageRoleAssistant || snap.Transcript[0].Content != pc.Greeting {
		t.Errorf("first entry should be the greeting, got %+v", snap.Transcript[0])
	}
	if snap.Transcript[1].Role != entities.MessageRoleUser || snap.Transcript[1].Content != "I'm about two hours out." {
		t.Errorf("second entry = %+v", snap.Transcript[1])
	}
	if snap.Transcript[2].Role != entities.MessageRoleAssistant || snap.Transcript[2].Content != "Copy that. Thanks for the update." {
		t.Errorf("third entry = %+v", snap.Transcript[2])
	}

	if snap.Metrics.PromptTokens != 20 || snap.Metrics.CompletionTokens != 10 {
		t.Errorf("token usage = %+v", snap.Metrics)
	}
	if snap.Metrics.CharactersSynth == 0 {
		t.Error("synthesized characters not collected")
	}
	if snap.Metrics.AudioSeconds <= 0 {
		t.Error("audio seconds not collected")
	}

	calls, terminal := h.finalizer.stats()
	if calls != 1 {
		t.Errorf("finalizer called %d times, want exactly 1", calls)
	}
	if terminal != entities.SessionStateCompleted {
		t.Errorf("finalizer saw state %q, want completed", terminal)
	}
}

func TestOrchestratorConcurrentDrainFinalizesOnce(t *testing.T) {
	h := newCallHarness(t, entities.DefaultPipelineConfig())

	go h.orch.Start(context.Background())
	waitFor(t, "session active", func() bool {
		return h.session.State() == entities.SessionStateActive
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.orch.Drain("api_end")
		}()
	}
	wg.Wait()
	h.waitDone(t)

	if got := h.session.State(); got != entities.SessionStateCompleted {
		t.Errorf("state = %q, want completed", got)
	}
	calls, _ := h.finalizer.stats()
	if calls != 1 {
		t.Errorf("finalizer called %d times, want exactly 1", calls)
	}
}

func TestOrchestratorRemoteDisconnectCompletes(t *testing.T) {
	h := newCallHarness(t, entities.DefaultPipelineConfig())

	go h.orch.Start(context.Background())
	waitFor(t, "session active", func() bool {
		return h.session.State() == entities.SessionStateActive
	})

	h.transport.Hangup()
	h.waitDone(t)

	if got := h.session.State(); got != entities.SessionStateCompleted {
		t.Errorf("state = %q, want completed", got)
	}
	calls, _ := h.finalizer.stats()
	if calls != 1 {
		t.Errorf("finalizer called %d times", calls)
	}
}

func TestOrchestratorProviderErrorFailsSessionKeepingTranscript(t *testing.T) {
	pc := entities.DefaultPipelineConfig()
	pc.Greeting = "Hello there."
	h := newCallHarness(t, pc)
	h.llm.StartErr = errors.New("rate limited")

	go h.orch.Start(context.Background())
	waitFor(t, "greeting audio", func() bool { return len(h.transport.Sent()) >= 1 })

	h.transport.Feed(make([]byte, 640))
	h.stt.Emit(repositories.Recognition{Text: "Can you hear me?", Final: true, Confidence: 0.9})
	h.waitDone(t)

	if err := h.orch.Err(); err == nil {
		t.Fatal("expected run error")
	}
	snap := h.session.Snapshot()
	if snap.State != entities.SessionStateFailed {
		t.Errorf("state = %q, want failed", snap.State)
	}
	if snap.LastError == "" {
		t.Error("failure cause not recorded")
	}

	// Everything captured before the failure stays in the transcript.
	foundUser := false
	for _, e := range snap.Transcript {
		if e.Role == entities.MessageRoleUser && e.Content == "Can you hear me?" {
			foundUser = true
		}
	}
	if !foundUser {
		t.Errorf("user utterance lost on failure: %+v", snap.Transcript)
	}

	calls, terminal := h.finalizer.stats()
	if calls != 1 {
		t.Errorf("finalizer called %d times", calls)
	}
	if terminal != entities.SessionStateFailed {
		t.Errorf("finalizer saw state %q, want failed", terminal)
	}
}

func TestOrchestratorTransportStartFailureFailsSession(t *testing.T) {
	h := newCallHarness(t, entities.DefaultPipelineConfig())
	h.transport.StartErr = errors.New("no caller connected")

	go h.orch.Start(context.Background())
	h.waitDone(t)

	if got := h.session.State(); got != entities.SessionStateFailed {
		t.Errorf("state = %q, want failed", got)
	}
	calls, _ := h.finalizer.stats()
	if calls != 1 {
		t.Errorf("finalizer called %d times", calls)
	}
}

func TestOrchestratorRejectsSecondStart(t *testing.T) {
	h := newCallHarness(t, entities.DefaultPipelineConfig())

	go h.orch.Start(context.Background())
	waitFor(t, "session active", func() bool {
		return h.session.State() == entities.SessionStateActive
	})
	if err := h.orch.Start(context.Background()); err == nil {
		t.Error("second Start should be rejected")
	}

	h.orch.Drain("test_done")
	h.waitDone(t)
}

func TestOrchestratorFinalizerErrorSurfacesWithoutReopening(t *testing.T) {
	h := newCallHarness(t, entities.DefaultPipelineConfig())
	h.finalizer.err = errors.New("store unavailable")

	go h.orch.Start(context.Background())
	waitFor(t, "session active", func() bool {
		return h.session.State() == entities.SessionStateActive
	})
	h.orch.Drain("api_end")
	h.waitDone(t)

	if err := h.orch.Err(); err == nil {
		t.Error("finalizer failure should surface through Err")
	}
	// The session stays terminal; a store failure never reopens it.
	if got := h.session.State(); got != entities.SessionStateCompleted {
		t.Errorf("state = %q, want completed", got)
	}
}
