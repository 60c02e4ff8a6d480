package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/adapters/llm"
	"github.com/fleetline/dispatchvoice/adapters/stt"
	"github.com/fleetline/dispatchvoice/adapters/tts"
	"github.com/fleetline/dispatchvoice/config"
	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// Components are the provider clients assembled for one call.
type Components struct {
	STT repositories.SpeechToText
	TTS repositories.TextToSpeech
	LLM repositories.LargeLanguageModel
}

// Factory validates a pipeline recipe and constructs its provider
// clients. Validation happens entirely up front: an unsupported provider
// or missing credential is rejected before any connection is dialed.
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// Build constructs the recognition, synthesis, and completion clients for
// the given recipe.
func (f *Factory) Build(ctx context.Context, pc entities.PipelineConfig) (*Components, error) {
	c := &Components{}

	switch pc.Transport {
	case entities.TransportWebsocket, entities.TransportDailyWebRTC:
	default:
		return nil, &entities.ConfigurationError{Provider: string(pc.Transport), Reason: "unsupported transport"}
	}

	switch pc.STT.Provider {
	case entities.STTDeepgram:
		if f.cfg.Deepgram.APIKey == "" {
			return nil, &entities.ConfigurationError{Provider: "deepgram", Reason: "DEEPGRAM_API_KEY is not set"}
		}
		c.STT = stt.NewDeepgram(f.cfg.Deepgram.APIKey, pc.STT.Model, pc.STT.Language, f.logger)
	case entities.STTGoogle:
		if f.cfg.Google.CredentialsFile == "" {
			return nil, &entities.ConfigurationError{Provider: "google", Reason: "GOOGLE_APPLICATION_CREDENTIALS is not set"}
		}
		c.STT = stt.NewGoogle(pc.STT.Language, f.logger)
	default:
		return nil, &entities.ConfigurationError{Provider: string(pc.STT.Provider), Reason: "unsupported speech-to-text provider"}
	}

	switch pc.TTS.Provider {
	case entities.TTSElevenLabs:
		if f.cfg.ElevenLabs.APIKey == "" {
			return nil, &entities.ConfigurationError{Provider: "eleven_labs", Reason: "ELEVEN_LABS_API_KEY is not set"}
		}
		voice := pc.TTS.VoiceID
		if voice == "" {
			voice = f.cfg.ElevenLabs.VoiceID
		}
		c.TTS = tts.NewElevenLabs(f.cfg.ElevenLabs.APIKey, voice, pc.TTS.Model, f.logger)
	case entities.TTSCartesia:
		if f.cfg.Cartesia.APIKey == "" {
			return nil, &entities.ConfigurationError{Provider: "cartesia", Reason: "CARTESIA_API_KEY is not set"}
		}
		voice := pc.TTS.VoiceID
		if voice == "" {
			voice = f.cfg.Cartesia.VoiceID
		}
		c.TTS = tts.NewCartesia(f.cfg.Cartesia.APIKey, voice, pc.TTS.Model, f.logger)
	default:
		return nil, &entities.ConfigurationError{Provider: string(pc.TTS.Provider), Reason: "unsupported text-to-speech provider"}
	}

	switch pc.LLM.Provider {
	case entities.LLMOpenAI:
		if f.cfg.OpenAI.APIKey == "" {
			return nil, &entities.ConfigurationError{Provider: "openai", Reason: "OPENAI_API_KEY is not set"}
		}
		c.LLM = llm.NewOpenAI(f.cfg.OpenAI.APIKey, pc.LLM.Model, pc.LLM.Temperature, f.logger)
	case entities.LLMAnthropic:
		if f.cfg.Anthropic.APIKey == "" {
			return nil, &entities.ConfigurationError{Provider: "anthropic", Reason: "ANTHROPIC_API_KEY is not set"}
		}
		c.LLM = llm.NewAnthropic(f.cfg.Anthropic.APIKey, pc.LLM.Model, pc.LLM.Temperature, f.logger)
	case entities.LLMGemini:
		if f.cfg.Gemini.APIKey == "" {
			return nil, &entities.ConfigurationError{Provider: "gemini", Reason: "GEMINI_API_KEY is not set"}
		}
		gem, err := llm.NewGemini(ctx, f.cfg.Gemini.APIKey, pc.LLM.Model, pc.LLM.Temperature, f.logger)
		if err != nil {
			return nil, &entities.ConfigurationError{Provider: "gemini", Reason: err.Error()}
		}
		c.LLM = gem
	default:
		return nil, &entities.ConfigurationError{Provider: string(pc.LLM.Provider), Reason: "unsupported language model provider"}
	}

	return c, nil
}
