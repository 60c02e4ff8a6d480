package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/config"
	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

const provisionTimeout = 15 * time.Second

// DailyProvisioner acquires rooms and bot tokens from the Daily REST
// API. Any failure surfaces as ProvisioningError so the trigger can be
// retried without a half-created session.
type DailyProvisioner struct {
	apiKey     string
	baseURL    string
	roomTTL    time.Duration
	maxJoiners int
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.RoomProvisioner = (*DailyProvisioner)(nil)

func NewDailyProvisioner(cfg config.DailyConfig, logger *zap.Logger) *DailyProvisioner {
	return &DailyProvisioner{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.APIBaseURL,
		roomTTL:    cfg.RoomTTL,
		maxJoiners: cfg.MaxJoiners,
		httpClient: &http.Client{Timeout: provisionTimeout},
		logger:     logger,
	}
}

type dailyRoomRequest struct {
	Name       string              `json:"name"`
	Properties dailyRoomProperties `json:"properties"`
}

type dailyRoomProperties struct {
	Exp             int64 `json:"exp"`
	MaxParticipants int   `json:"max_participants"`
	EnableChat      bool  `json:"enable_chat"`
}

type dailyRoomResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type dailyTokenRequest struct {
	Properties dailyTokenProperties `json:"properties"`
}

type dailyTokenProperties struct {
	RoomName string `json:"room_name"`
	IsOwner  bool   `json:"is_owner"`
	Exp      int64  `json:"exp"`
}

type dailyTokenResponse struct {
	Token string `json:"token"`
}

// ProvisionRoom creates a short-lived room plus a bot token. The room
// name is derived from the session so operators can correlate the two.
func (p *DailyProvisioner) ProvisionRoom(ctx context.Context, sessionID string) (*entities.RoomGrant, error) {
	if p.apiKey == "" {
		return nil, &entities.ProvisioningError{Provider: "daily", Err: fmt.Errorf("DAILY_API_KEY is not set")}
	}

	ctx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	shortID := sessionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	roomName := "dispatcher-" + shortID
	expiresAt := time.Now().Add(p.roomTTL)

	var room dailyRoomResponse
	if err := p.post(ctx, "/rooms", dailyRoomRequest{
		Name: roomName,
		Properties: dailyRoomProperties{
			Exp:             expiresAt.Unix(),
			MaxParticipants: p.maxJoiners,
		},
	}, &room); err != nil {
		return nil, &entities.ProvisioningError{Provider: "daily", Err: fmt.Errorf("creating room: %w", err)}
	}

	var token dailyTokenResponse
	if err := p.post(ctx, "/meeting-tokens", dailyTokenRequest{
		Properties: dailyTokenProperties{
			RoomName: room.Name,
			IsOwner:  true,
			Exp:      expiresAt.Unix(),
		},
	}, &token); err != nil {
		return nil, &entities.ProvisioningError{Provider: "daily", Err: fmt.Errorf("creating bot token: %w", err)}
	}

	p.logger.Info("provisioned room",
		zap.String("session_id", sessionID),
		zap.String("room_name", room.Name),
		zap.Time("expires_at", expiresAt))

	return &entities.RoomGrant{
		RoomURL:   room.URL,
		RoomName:  room.Name,
		BotToken:  token.Token,
		ExpiresAt: expiresAt,
	}, nil
}

func (p *DailyProvisioner) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daily API returned %d: %s", resp.StatusCode, string(errorBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SetBaseURL points the client at a different API host. Used by tests.
func (p *DailyProvisioner) SetBaseURL(url string) { p.baseURL = url }
