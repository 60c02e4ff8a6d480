package wsbridge

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/adapters/transport"
)

// Registry connects inbound transport attachments to the session that is
// waiting for them. A trigger registers the session's transport here;
// the matching websocket upgrade or SDP offer that arrives later is
// routed by session id.
type Registry struct {
	mu      sync.Mutex
	sockets map[string]*transport.WebSocket
	rtc     map[string]*transport.WebRTC
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sockets: make(map[string]*transport.WebSocket),
		rtc:     make(map[string]*transport.WebRTC),
		logger:  logger,
	}
}

func (r *Registry) RegisterSocket(sessionID string, t *transport.WebSocket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sockets[sessionID] = t
}

func (r *Registry) RegisterRTC(sessionID string, t *transport.WebRTC) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtc[sessionID] = t
}

// AttachSocket hands an upgraded connection to the waiting websocket
// transport for the session.
func (r *Registry) AttachSocket(sessionID string, conn *websocket.Conn) error {
	r.mu.Lock()
	t, ok := r.sockets[sessionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no websocket session waiting for id %s", sessionID)
	}
	if err := t.Attach(conn); err != nil {
		return fmt.Errorf("attaching socket to session %s: %w", sessionID, err)
	}
	r.logger.Info("websocket attached", zap.String("session_id", sessionID))
	return nil
}

// Offer negotiates the media leg for a WebRTC session and returns the
// SDP answer.
func (r *Registry) Offer(sessionID string, offer transport.SessionDescription) (transport.SessionDescription, error) {
	r.mu.Lock()
	t, ok := r.rtc[sessionID]
	r.mu.Unlock()
	if !ok {
		return transport.SessionDescription{}, fmt.Errorf("no webrtc session waiting for id %s", sessionID)
	}
	answer, err := t.Connect(offer)
	if err != nil {
		return transport.SessionDescription{}, fmt.Errorf("negotiating session %s: %w", sessionID, err)
	}
	r.logger.Info("webrtc negotiated", zap.String("session_id", sessionID))
	return answer, nil
}

// Remove drops the session's registration. Called when the call ends;
// attachments arriving afterwards are rejected.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sockets, sessionID)
	delete(r.rtc, sessionID)
}
