package entities

import "time"

// CallStatus mirrors the session lifecycle in the durable store.
type CallStatus string

const (
	CallStatusPending    CallStatus = "pending"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
)

// CallRecord is the durable row created when a call is triggered and
// finalized exactly once when the call ends.
type CallRecord struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	AgentID    string            `json:"agent_id"`
	DriverName string            `json:"driver_name,omitempty"`
	LoadNumber string            `json:"load_number,omitempty"`
	Status     CallStatus        `json:"status"`
	RoomURL    string            `json:"room_url,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	EndedAt    *time.Time        `json:"ended_at,omitempty"`
}

// CallUpdate carries the fields a finalization writes onto the call row.
// Nil pointers leave the stored value untouched.
type CallUpdate struct {
	Status          *CallStatus `json:"status,omitempty"`
	Transcript      *string     `json:"transcript,omitempty"`
	DurationSeconds *float64    `json:"duration_seconds,omitempty"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"`
	ErrorMessage    *string     `json:"error_message,omitempty"`
}

// CostBreakdown itemizes the estimated cost of one call in USD.
type CostBreakdown struct {
	STT       float64 `json:"stt_cost"`
	TTS       float64 `json:"tts_cost"`
	LLM       float64 `json:"llm_cost"`
	Transport float64 `json:"transport_cost"`
	Total     float64 `json:"total_cost"`
}

// CallResults holds the post-call artifacts written alongside the call
// row: the formatted transcript and the cost estimate.
type CallResults struct {
	CallID          string        `json:"call_id"`
	SessionID       string        `json:"session_id"`
	Transcript      string        `json:"transcript"`
	DurationSeconds float64       `json:"duration_seconds"`
	Cost            CostBreakdown `json:"cost"`
	CreatedAt       time.Time     `json:"created_at"`
}

// RoomGrant is a provisioned transport endpoint: the room a caller joins
// plus the token that admits the bot.
type RoomGrant struct {
	RoomURL   string    `json:"room_url"`
	RoomName  string    `json:"room_name"`
	BotToken  string    `json:"bot_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AgentProfile is the stored definition of a dispatch agent: its prompt
// templates and default pipeline recipe.
type AgentProfile struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	SystemPrompt string         `json:"system_prompt"`
	Greeting     string         `json:"greeting"`
	Config       PipelineConfig `json:"config"`
}
