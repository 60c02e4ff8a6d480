package entities

// Provider identifiers accepted by the pipeline factory. Unknown values
// surface as ConfigurationError before any client is dialed.
type STTProvider string

const (
	STTDeepgram STTProvider = "deepgram"
	STTGoogle   STTProvider = "google"
)

type TTSProvider string

const (
	TTSElevenLabs TTSProvider = "eleven_labs"
	TTSCartesia   TTSProvider = "cartesia"
)

type LLMProvider string

const (
	LLMOpenAI    LLMProvider = "openai"
	LLMAnthropic LLMProvider = "anthropic"
	LLMGemini    LLMProvider = "gemini"
)

type TransportKind string

const (
	TransportDailyWebRTC TransportKind = "daily_webrtc"
	TransportWebsocket   TransportKind = "websocket"
)

// STTConfig selects the recognition backend for a call.
type STTConfig struct {
	Provider STTProvider `json:"provider"`
	Model    string      `json:"model"`
	Language string      `json:"language"`
}

// TTSConfig selects the synthesis backend and voice for a call.
type TTSConfig struct {
	Provider TTSProvider `json:"provider"`
	VoiceID  string      `json:"voice_id"`
	Model    string      `json:"model"`
}

// LLMConfig selects the conversation model for a call.
type LLMConfig struct {
	Provider    LLMProvider `json:"provider"`
	Model       string      `json:"model"`
	Temperature float64     `json:"temperature"`
}

// PipelineConfig is the full per-call recipe: which providers to assemble,
// the system prompt and greeting after placeholder substitution, and the
// transport the caller joins through.
type PipelineConfig struct {
	STT                STTConfig     `json:"stt"`
	TTS                TTSConfig     `json:"tts"`
	LLM                LLMConfig     `json:"llm"`
	Transport          TransportKind `json:"transport"`
	SystemPrompt       string        `json:"system_prompt"`
	Greeting           string        `json:"greeting"`
	AllowInterruptions bool          `json:"allow_interruptions"`
	VADEnabled         bool          `json:"vad_enabled"`
}

// DefaultPipelineConfig returns the stack used when an agent carries no
// explicit configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		STT:                STTConfig{Provider: STTDeepgram, Model: "nova-2", Language: "en"},
		TTS:                TTSConfig{Provider: TTSElevenLabs, Model: "eleven_turbo_v2"},
		LLM:                LLMConfig{Provider: LLMOpenAI, Model: "gpt-4o", Temperature: 0.7},
		Transport:          TransportDailyWebRTC,
		AllowInterruptions: true,
		VADEnabled:         true,
	}
}
