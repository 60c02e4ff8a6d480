package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// How long Start waits for the caller to connect.
	attachWait = 60 * time.Second
)

type writeData struct {
	Type    int
	Payload []byte
}

// controlMessage is the JSON envelope for non-audio client messages.
type controlMessage struct {
	Type string `json:"type"`
}

// WebSocket is a Transport fed by a caller's websocket connection. The
// session is created first; the caller dials in afterwards and the
// connection is handed over through Attach.
type WebSocket struct {
	sessionID string
	logger    *zap.Logger

	attach chan *websocket.Conn
	input  chan []byte
	send   chan writeData
	done   chan struct{}

	attachOnce sync.Once
	closeOnce  sync.Once
	doneOnce   sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ repositories.Transport = (*WebSocket)(nil)

func NewWebSocket(sessionID string, logger *zap.Logger) *WebSocket {
	return &WebSocket{
		sessionID: sessionID,
		logger:    logger.With(zap.String("session_id", sessionID)),
		attach:    make(chan *websocket.Conn, 1),
		input:     make(chan []byte, 256),
		send:      make(chan writeData, 256),
		done:      make(chan struct{}),
	}
}

func (t *WebSocket) Kind() entities.TransportKind { return entities.TransportWebsocket }

// Attach hands the upgraded connection to the transport. Only the first
// connection per session is accepted.
func (t *WebSocket) Attach(conn *websocket.Conn) error {
	accepted := false
	t.attachOnce.Do(func() {
		t.attach <- conn
		accepted = true
	})
	if !accepted {
		return fmt.Errorf("session %s already has a connection", t.sessionID)
	}
	return nil
}

// Start blocks until the caller connects, then runs the read and write
// pumps in the background.
func (t *WebSocket) Start(ctx context.Context) error {
	select {
	case conn := <-t.attach:
		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		go t.readPump(conn)
		go t.writePump(conn)
		t.logger.Info("caller connected")
		return nil
	case <-time.After(attachWait):
		return fmt.Errorf("no caller connected within %s", attachWait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *WebSocket) Input() <-chan []byte { return t.input }

func (t *WebSocket) Output(audio []byte) error {
	select {
	case t.send <- writeData{Type: websocket.BinaryMessage, Payload: audio}:
		return nil
	case <-t.done:
		return fmt.Errorf("transport closed")
	}
}

func (t *WebSocket) Done() <-chan struct{} { return t.done }

func (t *WebSocket) Close() error {
	t.closeOnce.Do(func() {
		t.signalDone()
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn != nil {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		}
	})
	return nil
}

func (t *WebSocket) signalDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

// readPump pumps caller messages into the transport: binary frames are
// audio, text frames are control messages.
func (t *WebSocket) readPump(conn *websocket.Conn) {
	defer func() {
		t.signalDone()
		close(t.input)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				t.logger.Error("websocket read failed", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			select {
			case t.input <- message:
			case <-t.done:
				return
			}
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				t.logger.Warn("unparseable control message", zap.Error(err))
				continue
			}
			if msg.Type == "hangup" {
				t.logger.Info("caller hung up")
				return
			}
			t.logger.Warn("unknown control message", zap.String("type", msg.Type))
		default:
			t.logger.Warn("unexpected websocket message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps outbound audio to the caller and keeps the connection
// alive with pings.
func (t *WebSocket) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-t.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(message.Type, message.Payload); err != nil {
				t.logger.Error("websocket write failed", zap.Error(err))
				t.signalDone()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.signalDone()
				return
			}
		case <-t.done:
			return
		}
	}
}
