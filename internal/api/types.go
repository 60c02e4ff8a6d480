package api

import (
	"github.com/fleetline/dispatchvoice/adapters/transport"
	"github.com/fleetline/dispatchvoice/internal/call"
)

// TriggerCallRequest is the payload for POST /api/v1/calls.
type TriggerCallRequest struct {
	AgentID    string            `json:"agent_id" validate:"required"`
	DriverName string            `json:"driver_name"`
	LoadNumber string            `json:"load_number"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// TriggerCallResponse extends the service response with the caller token
// that admits the session's transport endpoints.
type TriggerCallResponse struct {
	call.TriggerResponse
	CallerToken string `json:"caller_token,omitempty"`
}

// OfferRequest carries the caller's SDP offer for a WebRTC session.
type OfferRequest struct {
	SDP transport.SessionDescription `json:"sdp"`
}

// OfferResponse carries the SDP answer back to the caller.
type OfferResponse struct {
	SDP transport.SessionDescription `json:"sdp"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
