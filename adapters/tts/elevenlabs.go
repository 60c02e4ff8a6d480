package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

const (
	elevenLabsBaseURL    = "https://api.elevenlabs.io/v1"
	elevenLabsChunkSize  = 1024
	elevenLabsFormat     = "pcm_16000"
	elevenLabsModel      = "eleven_turbo_v2"
	elevenLabsStability  = 0.5
	elevenLabsSimilarity = 0.75
)

// ElevenLabs implements TextToSpeech against the Eleven Labs streaming
// endpoint. Audio is delivered as raw PCM chunks while the response body
// is still being written.
type ElevenLabs struct {
	apiKey     string
	baseURL    string
	voiceID    string
	modelID    string
	httpClient *http.Client
	characters atomic.Int64
	logger     *zap.Logger
}

var _ repositories.TextToSpeech = (*ElevenLabs)(nil)

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

func NewElevenLabs(apiKey, voiceID, modelID string, logger *zap.Logger) *ElevenLabs {
	if modelID == "" {
		modelID = elevenLabsModel
	}
	return &ElevenLabs{
		apiKey:     apiKey,
		baseURL:    elevenLabsBaseURL,
		voiceID:    voiceID,
		modelID:    modelID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

func (e *ElevenLabs) Provider() string { return "eleven_labs" }

func (e *ElevenLabs) CharactersSynthesized() int { return int(e.characters.Load()) }

// SetBaseURL points the client at a different API host. Used by tests.
func (e *ElevenLabs) SetBaseURL(url string) { e.baseURL = url }

func (e *ElevenLabs) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: e.modelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       elevenLabsStability,
			SimilarityBoost: elevenLabsSimilarity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.baseURL, e.voiceID, elevenLabsFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "audio/pcm")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("eleven labs returned %d: %s", resp.StatusCode, string(errorBody))
	}

	e.characters.Add(int64(len(text)))

	audioChan := make(chan []byte, 10)
	go func() {
		defer close(audioChan)
		defer resp.Body.Close()

		buffer := make([]byte, elevenLabsChunkSize)
		for {
			n, err := resp.Body.Read(buffer)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buffer[:n])
				select {
				case audioChan <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				e.logger.Error("error reading synthesis response", zap.Error(err))
				return
			}
		}
	}()

	return audioChan, nil
}
