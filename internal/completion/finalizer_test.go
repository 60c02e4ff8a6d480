package completion

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/fleetline/dispatchvoice/adapters/store"
	"github.com/fleetline/dispatchvoice/domain/entities"
)

func newFinishedSession(t *testing.T, id, callID string) *entities.Session {
	t.Helper()
	session := entities.NewSession(id, callID, entities.DefaultPipelineConfig())
	if err := session.Transition(entities.SessionStateConnecting); err != nil {
		t.Fatal(err)
	}
	if err := session.Transition(entities.SessionStateActive); err != nil {
		t.Fatal(err)
	}
	return session
}

func TestFinalizeCompletedCall(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	if err := mem.CreateCall(ctx, &entities.CallRecord{ID: "call-1", SessionID: "sess-1"}); err != nil {
		t.Fatal(err)
	}

	session := newFinishedSession(t, "sess-1", "call-1")
	if err := session.AppendTranscript(entities.MessageRoleAssistant, "Hi, calling about your load."); err != nil {
		t.Fatal(err)
	}
	if err := session.AppendTranscript(entities.MessageRoleUser, "Running on time."); err != nil {
		t.Fatal(err)
	}
	session.AddMetrics(entities.SessionMetrics{
		AudioSeconds:     30,
		CharactersSynth:  300,
		PromptTokens:     100,
		CompletionTokens: 50,
	})
	time.Sleep(5 * time.Millisecond)
	if err := session.Transition(entities.SessionStateCompleted); err != nil {
		t.Fatal(err)
	}

	finalizer := NewFinalizer(mem, zaptest.NewLogger(t))
	if err := finalizer.Finalize(ctx, session); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	update, ok := mem.LastUpdate("call-1")
	if !ok {
		t.Fatal("call row was not updated")
	}
	if update.Status == nil || *update.Status != entities.CallStatusCompleted {
		t.Errorf("status = %v, want completed", update.Status)
	}
	if update.Transcript == nil || !strings.Contains(*update.Transcript, "USER: Running on time.") {
		t.Errorf("transcript missing user line: %v", update.Transcript)
	}
	if update.DurationSeconds == nil || *update.DurationSeconds <= 0 {
		t.Errorf("duration = %v, want > 0", update.DurationSeconds)
	}
	if update.ErrorMessage != nil {
		t.Errorf("unexpected error message %q", *update.ErrorMessage)
	}

	results := mem.Results("call-1")
	if results == nil {
		t.Fatal("results row was not written")
	}
	if results.SessionID != "sess-1" {
		t.Errorf("results session = %q", results.SessionID)
	}
	// 300 characters through eleven_labs at $0.0003/char.
	if math.Abs(results.Cost.TTS-0.09) > 1e-9 {
		t.Errorf("tts cost = %v, want 0.09", results.Cost.TTS)
	}
	if results.Cost.Total <= results.Cost.TTS {
		t.Errorf("total %v should exceed tts component alone", results.Cost.Total)
	}
}

func TestFinalizeFailedCallKeepsTranscriptAndError(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	if err := mem.CreateCall(ctx, &entities.CallRecord{ID: "call-2", SessionID: "sess-2"}); err != nil {
		t.Fatal(err)
	}

	session := newFinishedSession(t, "sess-2", "call-2")
	if err := session.AppendTranscript(entities.MessageRoleAssistant, "Hi there."); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := session.Fail(errors.New("speech stream dropped")); err != nil {
		t.Fatal(err)
	}

	finalizer := NewFinalizer(mem, zaptest.NewLogger(t))
	if err := finalizer.Finalize(ctx, session); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	update, ok := mem.LastUpdate("call-2")
	if !ok {
		t.Fatal("call row was not updated")
	}
	if update.Status == nil || *update.Status != entities.CallStatusFailed {
		t.Errorf("status = %v, want failed", update.Status)
	}
	if update.ErrorMessage == nil || *update.ErrorMessage != "speech stream dropped" {
		t.Errorf("error message = %v", update.ErrorMessage)
	}
	if update.Transcript == nil || !strings.Contains(*update.Transcript, "ASSISTANT: Hi there.") {
		t.Errorf("transcript missing assistant line: %v", update.Transcript)
	}
	if mem.Results("call-2") == nil {
		t.Error("failed call with talk time should still get a results row")
	}
}

func TestFinalizeNeverConnectedSkipsResults(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	if err := mem.CreateCall(ctx, &entities.CallRecord{ID: "call-3", SessionID: "sess-3"}); err != nil {
		t.Fatal(err)
	}

	session := entities.NewSession("sess-3", "call-3", entities.DefaultPipelineConfig())
	if err := session.Transition(entities.SessionStateConnecting); err != nil {
		t.Fatal(err)
	}
	if err := session.Fail(errors.New("transport never attached")); err != nil {
		t.Fatal(err)
	}

	finalizer := NewFinalizer(mem, zaptest.NewLogger(t))
	if err := finalizer.Finalize(ctx, session); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	update, ok := mem.LastUpdate("call-3")
	if !ok {
		t.Fatal("call row should still be updated")
	}
	if update.Status == nil || *update.Status != entities.CallStatusFailed {
		t.Errorf("status = %v, want failed", update.Status)
	}
	if mem.Results("call-3") != nil {
		t.Error("call without talk time should not produce a results row")
	}
}

func TestFinalizeUnknownSession(t *testing.T) {
	mem := store.NewMemory()
	session := newFinishedSession(t, "sess-missing", "call-missing")
	if err := session.Transition(entities.SessionStateCompleted); err != nil {
		t.Fatal(err)
	}

	finalizer := NewFinalizer(mem, zaptest.NewLogger(t))
	err := finalizer.Finalize(context.Background(), session)
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
	var perr *entities.PersistenceError
	if !errors.As(err, &perr) {
		t.Errorf("expected PersistenceError in chain, got %v", err)
	}
}
