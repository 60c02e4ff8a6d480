package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/fleetline/dispatchvoice/config"
	"github.com/fleetline/dispatchvoice/domain/entities"
)

func testConfig() config.DailyConfig {
	return config.DailyConfig{
		APIKey:     "test-key",
		RoomTTL:    time.Hour,
		MaxJoiners: 2,
	}
}

func TestProvisionRoom(t *testing.T) {
	var roomReq dailyRoomRequest
	var tokenReq dailyTokenRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Path {
		case "/rooms":
			json.NewDecoder(r.Body).Decode(&roomReq)
			json.NewEncoder(w).Encode(dailyRoomResponse{
				Name: roomReq.Name,
				URL:  "https://example.daily.co/" + roomReq.Name,
			})
		case "/meeting-tokens":
			json.NewDecoder(r.Body).Decode(&tokenReq)
			json.NewEncoder(w).Encode(dailyTokenResponse{Token: "bot-token-123"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	p := NewDailyProvisioner(testConfig(), zaptest.NewLogger(t))
	p.SetBaseURL(server.URL)

	grant, err := p.ProvisionRoom(context.Background(), "0a1b2c3d-4e5f-6789-abcd-ef0123456789")
	if err != nil {
		t.Fatalf("ProvisionRoom: %v", err)
	}

	if roomReq.Name != "dispatcher-0a1b2c3d" {
		t.Errorf("room name = %q", roomReq.Name)
	}
	if roomReq.Properties.MaxParticipants != 2 {
		t.Errorf("max participants = %d", roomReq.Properties.MaxParticipants)
	}
	if roomReq.Properties.Exp <= time.Now().Unix() {
		t.Error("room expiry must be in the future")
	}
	if tokenReq.Properties.RoomName != "dispatcher-0a1b2c3d" || !tokenReq.Properties.IsOwner {
		t.Errorf("token request = %+v", tokenReq)
	}
	if !strings.HasSuffix(grant.RoomURL, "dispatcher-0a1b2c3d") || grant.BotToken != "bot-token-123" {
		t.Errorf("grant = %+v", grant)
	}
}

func TestProvisionRoomAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid-request-error"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	p := NewDailyProvisioner(testConfig(), zaptest.NewLogger(t))
	p.SetBaseURL(server.URL)

	_, err := p.ProvisionRoom(context.Background(), "sess-1")
	var pe *entities.ProvisioningError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProvisioningError, got %v", err)
	}
	if pe.Provider != "daily" {
		t.Errorf("provider = %q", pe.Provider)
	}
}

func TestProvisionRoomMissingKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""
	p := NewDailyProvisioner(cfg, zaptest.NewLogger(t))

	_, err := p.ProvisionRoom(context.Background(), "sess-1")
	var pe *entities.ProvisioningError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProvisioningError, got %v", err)
	}
}

func TestProvisionRoomTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect
		// and cancels the request context; otherwise Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	p := NewDailyProvisioner(testConfig(), zaptest.NewLogger(t))
	p.SetBaseURL(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := p.ProvisionRoom(ctx, "sess-1"); err == nil {
		t.Fatal("expected timeout error")
	}
}
