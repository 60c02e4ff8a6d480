package cost

import (
	"github.com/fleetline/dispatchvoice/domain/entities"
)

// Per-unit prices in USD. STT and transport bill per minute, TTS per
// character, LLM per 1K tokens (input, output). Unknown models fall back
// to the provider default.
var (
	sttPerMinute = map[string]float64{
		"deepgram:nova-2": 0.0043,
		"deepgram:nova-3": 0.0043,
		"deepgram":        0.0043,
		"google:latest":   0.0060,
		"google":          0.0060,
	}

	ttsPerCharacter = map[string]float64{
		"eleven_labs": 0.0003,
		"cartesia":    0.000015,
	}

	llmPer1K = map[string][2]float64{
		"gpt-4o":            {0.0025, 0.01},
		"gpt-4o-mini":       {0.00015, 0.0006},
		"claude-3-5-sonnet": {0.003, 0.015},
		"claude-sonnet-4":   {0.003, 0.015},
		"gemini-2.0-flash":  {0.000075, 0.0003},
		"gemini-1.5-pro":    {0.00125, 0.005},
	}

	transportPerMinute = map[entities.TransportKind]float64{
		entities.TransportDailyWebRTC: 0.0015,
		entities.TransportWebsocket:   0,
	}
)

// Default per-minute usage assumed when a call ended without live
// counters: speech averages about 300 synthesized characters and 400
// exchanged tokens per minute, split 60/40 between prompt and completion.
const (
	estCharsPerMinute  = 300.0
	estTokensPerMinute = 400.0
	estPromptShare     = 0.6
)

// Usage is the billable consumption of one call.
type Usage struct {
	DurationSeconds  float64
	AudioSeconds     float64
	Characters       int
	PromptTokens     int
	CompletionTokens int
}

// EstimateUsage fills in missing counters from the call duration. Live
// counters, when present, are kept as-is.
func EstimateUsage(u Usage) Usage {
	minutes := u.DurationSeconds / 60
	if u.AudioSeconds == 0 {
		u.AudioSeconds = u.DurationSeconds
	}
	if u.Characters == 0 {
		u.Characters = int(minutes * estCharsPerMinute)
	}
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		total := minutes * estTokensPerMinute
		u.PromptTokens = int(total * estPromptShare)
		u.CompletionTokens = int(total * (1 - estPromptShare))
	}
	return u
}

// Calculate itemizes the estimated USD cost of one call given its
// pipeline recipe and usage counters.
func Calculate(config entities.PipelineConfig, u Usage) entities.CostBreakdown {
	u = EstimateUsage(u)

	var b entities.CostBreakdown

	sttRate, ok := sttPerMinute[string(config.STT.Provider)+":"+config.STT.Model]
	if !ok {
		sttRate = sttPerMinute[string(config.STT.Provider)]
	}
	b.STT = u.AudioSeconds / 60 * sttRate

	b.TTS = float64(u.Characters) * ttsPerCharacter[string(config.TTS.Provider)]

	if rates, ok := llmPer1K[config.LLM.Model]; ok {
		b.LLM = float64(u.PromptTokens)/1000*rates[0] + float64(u.CompletionTokens)/1000*rates[1]
	}

	b.Transport = u.DurationSeconds / 60 * transportPerMinute[config.Transport]

	b.Total = b.STT + b.TTS + b.LLM + b.Transport
	return b
}
