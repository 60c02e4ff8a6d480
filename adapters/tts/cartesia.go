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
	cartesiaBaseURL    = "https://api.cartesia.ai"
	cartesiaVersion    = "2024-06-10"
	cartesiaChunkSize  = 1024
	cartesiaModel      = "sonic-english"
	cartesiaSampleRate = 16000
)

// Cartesia implements TextToSpeech against the Cartesia bytes endpoint,
// streaming raw PCM as the response body arrives.
type Cartesia struct {
	apiKey     string
	baseURL    string
	voiceID    string
	modelID    string
	httpClient *http.Client
	characters atomic.Int64
	logger     *zap.Logger
}

var _ repositories.TextToSpeech = (*Cartesia)(nil)

type cartesiaRequest struct {
	ModelID    string               `json:"model_id"`
	Transcript string               `json:"transcript"`
	Voice      cartesiaVoice        `json:"voice"`
	Output     cartesiaOutputFormat `json:"output_format"`
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

func NewCartesia(apiKey, voiceID, modelID string, logger *zap.Logger) *Cartesia {
	if modelID == "" {
		modelID = cartesiaModel
	}
	return &Cartesia{
		apiKey:     apiKey,
		baseURL:    cartesiaBaseURL,
		voiceID:    voiceID,
		modelID:    modelID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

func (c *Cartesia) Provider() string { return "cartesia" }

func (c *Cartesia) CharactersSynthesized() int { return int(c.characters.Load()) }

// SetBaseURL points the client at a different API host. Used by tests.
func (c *Cartesia) SetBaseURL(url string) { c.baseURL = url }

func (c *Cartesia) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(cartesiaRequest{
		ModelID:    c.modelID,
		Transcript: text,
		Voice:      cartesiaVoice{Mode: "id", ID: c.voiceID},
		Output: cartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: cartesiaSampleRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("cartesia returned %d: %s", resp.StatusCode, string(errorBody))
	}

	c.characters.Add(int64(len(text)))

	audioChan := make(chan []byte, 10)
	go func() {
		defer close(audioChan)
		defer resp.Body.Close()

		buffer := make([]byte, cartesiaChunkSize)
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
				c.logger.Error("error reading synthesis response", zap.Error(err))
				return
			}
		}
	}()

	return audioChan, nil
}
