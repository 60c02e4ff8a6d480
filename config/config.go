package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port      string
	JWTSecret string

	Deepgram   DeepgramConfig
	Google     GoogleConfig
	ElevenLabs ElevenLabsConfig
	Cartesia   CartesiaConfig
	OpenAI     OpenAIConfig
	Anthropic  AnthropicConfig
	Gemini     GeminiConfig
	Daily      DailyConfig
	Supabase   SupabaseConfig
	Mongo      MongoConfig
}

type DeepgramConfig struct {
	APIKey string
}

type GoogleConfig struct {
	CredentialsFile string
}

type ElevenLabsConfig struct {
	APIKey  string
	VoiceID string
}

type CartesiaConfig struct {
	APIKey  string
	VoiceID string
}

type OpenAIConfig struct {
	APIKey string
}

type AnthropicConfig struct {
	APIKey string
}

type GeminiConfig struct {
	APIKey string
}

type DailyConfig struct {
	APIKey      string
	APIBaseURL  string
	RoomTTL     time.Duration
	MaxJoiners  int
}

type SupabaseConfig struct {
	URL    string
	APIKey string
}

type MongoConfig struct {
	URI      string
	Database string
}

// Load reads configuration from the environment, consulting .env when
// present. Missing provider credentials are tolerated here; the pipeline
// factory rejects them only when the provider is actually selected.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		Deepgram:  DeepgramConfig{APIKey: os.Getenv("DEEPGRAM_API_KEY")},
		Google:    GoogleConfig{CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")},
		ElevenLabs: ElevenLabsConfig{
			APIKey:  os.Getenv("ELEVEN_LABS_API_KEY"),
			VoiceID: getEnv("ELEVEN_LABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		},
		Cartesia: CartesiaConfig{
			APIKey:  os.Getenv("CARTESIA_API_KEY"),
			VoiceID: os.Getenv("CARTESIA_VOICE_ID"),
		},
		OpenAI:    OpenAIConfig{APIKey: os.Getenv("OPENAI_API_KEY")},
		Anthropic: AnthropicConfig{APIKey: os.Getenv("ANTHROPIC_API_KEY")},
		Gemini:    GeminiConfig{APIKey: os.Getenv("GEMINI_API_KEY")},
		Daily: DailyConfig{
			APIKey:     os.Getenv("DAILY_API_KEY"),
			APIBaseURL: getEnv("DAILY_API_URL", "https://api.daily.co/v1"),
			RoomTTL:    time.Duration(getEnvInt("DAILY_ROOM_TTL_MINUTES", 60)) * time.Minute,
			MaxJoiners: getEnvInt("DAILY_ROOM_MAX_PARTICIPANTS", 2),
		},
		Supabase: SupabaseConfig{
			URL:    os.Getenv("SUPABASE_URL"),
			APIKey: os.Getenv("SUPABASE_KEY"),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: getEnv("MONGODB_DATABASE", "dispatchvoice"),
		},
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
