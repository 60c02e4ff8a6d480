package pipeline

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/fleetline/dispatchvoice/config"
	"github.com/fleetline/dispatchvoice/domain/entities"
)

func fullConfig() *config.Config {
	return &config.Config{
		Deepgram:   config.DeepgramConfig{APIKey: "dg-key"},
		Google:     config.GoogleConfig{CredentialsFile: "/tmp/creds.json"},
		ElevenLabs: config.ElevenLabsConfig{APIKey: "el-key", VoiceID: "default-voice"},
		Cartesia:   config.CartesiaConfig{APIKey: "ca-key", VoiceID: "ca-voice"},
		OpenAI:     config.OpenAIConfig{APIKey: "oa-key"},
		Anthropic:  config.AnthropicConfig{APIKey: "an-key"},
		Gemini:     config.GeminiConfig{APIKey: "gm-key"},
	}
}

func TestFactoryBuildsDefaultRecipe(t *testing.T) {
	factory := NewFactory(fullConfig(), zaptest.NewLogger(t))
	components, err := factory.Build(context.Background(), entities.DefaultPipelineConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := components.STT.Provider(); got != "deepgram" {
		t.Errorf("stt provider = %q", got)
	}
	if got := components.TTS.Provider(); got != "eleven_labs" {
		t.Errorf("tts provider = %q", got)
	}
	if got := components.LLM.Provider(); got != "openai" {
		t.Errorf("llm provider = %q", got)
	}
}

func TestFactoryBuildsEveryProvider(t *testing.T) {
	factory := NewFactory(fullConfig(), zaptest.NewLogger(t))
	pc := entities.DefaultPipelineConfig()
	pc.STT.Provider = entities.STTGoogle
	pc.TTS.Provider = entities.TTSCartesia
	pc.LLM.Provider = entities.LLMAnthropic

	components, err := factory.Build(context.Background(), pc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if components.STT.Provider() != "google" || components.TTS.Provider() != "cartesia" || components.LLM.Provider() != "anthropic" {
		t.Errorf("providers = %s/%s/%s",
			components.STT.Provider(), components.TTS.Provider(), components.LLM.Provider())
	}
}

func TestFactoryRejectsMissingCredentials(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		provider string
	}{
		{"deepgram key", func(c *config.Config) { c.Deepgram.APIKey = "" }, "deepgram"},
		{"eleven labs key", func(c *config.Config) { c.ElevenLabs.APIKey = "" }, "eleven_labs"},
		{"openai key", func(c *config.Config) { c.OpenAI.APIKey = "" }, "openai"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fullConfig()
			tt.mutate(cfg)
			factory := NewFactory(cfg, zaptest.NewLogger(t))
			_, err := factory.Build(context.Background(), entities.DefaultPipelineConfig())
			var confErr *entities.ConfigurationError
			if !errors.As(err, &confErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if confErr.Provider != tt.provider {
				t.Errorf("provider = %q, want %q", confErr.Provider, tt.provider)
			}
		})
	}
}

func TestFactoryRejectsUnknownProviders(t *testing.T) {
	factory := NewFactory(fullConfig(), zaptest.NewLogger(t))

	pc := entities.DefaultPipelineConfig()
	pc.STT.Provider = "whisper_local"
	var confErr *entities.ConfigurationError
	if _, err := factory.Build(context.Background(), pc); !errors.As(err, &confErr) {
		t.Errorf("unknown stt provider accepted: %v", err)
	}

	pc = entities.DefaultPipelineConfig()
	pc.LLM.Provider = "llama"
	if _, err := factory.Build(context.Background(), pc); !errors.As(err, &confErr) {
		t.Errorf("unknown llm provider accepted: %v", err)
	}

	pc = entities.DefaultPipelineConfig()
	pc.Transport = "carrier_pigeon"
	if _, err := factory.Build(context.Background(), pc); !errors.As(err, &confErr) {
		t.Errorf("unknown transport accepted: %v", err)
	} else if confErr.Provider != "carrier_pigeon" {
		t.Errorf("provider = %q, want carrier_pigeon", confErr.Provider)
	}
}
