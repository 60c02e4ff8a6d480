package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

const (
	rtcSampleRate   = 16000
	rtcFrameSamples = 320 // 20ms at 16kHz
	rtcFrameBytes   = rtcFrameSamples * 2
	rtcConnectWait  = 60 * time.Second
)

// SessionDescription is a small DTO so callers never handle webrtc types.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// WebRTC is a Transport backed by a pion peer connection. The caller
// posts an SDP offer through the signaling endpoint; inbound Opus is
// decoded to 16kHz PCM for the pipeline and outbound PCM is encoded and
// paced back onto the agent audio track.
type WebRTC struct {
	sessionID string
	logger    *zap.Logger

	input    chan []byte
	done     chan struct{}
	attached chan struct{}

	doneOnce     sync.Once
	inputOnce    sync.Once
	attachedOnce sync.Once
	closeOnce    sync.Once

	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	writer *opusWriter
}

var _ repositories.Transport = (*WebRTC)(nil)

func NewWebRTC(sessionID string, logger *zap.Logger) *WebRTC {
	return &WebRTC{
		sessionID: sessionID,
		logger:    logger.With(zap.String("session_id", sessionID)),
		input:     make(chan []byte, 256),
		done:      make(chan struct{}),
		attached:  make(chan struct{}),
	}
}

func (t *WebRTC) Kind() entities.TransportKind { return entities.TransportDailyWebRTC }

// Connect performs the SDP exchange for this session's media leg and
// returns the answer. Only one offer per session is accepted.
func (t *WebRTC) Connect(offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	t.mu.Lock()
	if t.pc != nil {
		t.mu.Unlock()
		return SessionDescription{}, fmt.Errorf("session %s already has a media leg", t.sessionID)
	}
	t.mu.Unlock()

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(registry))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return SessionDescription{}, err
	}

	outTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"agent-audio", "agent")
	if err != nil {
		pc.Close()
		return SessionDescription{}, err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		pc.Close()
		return SessionDescription{}, err
	}

	writer, err := newOpusWriter(outTrack)
	if err != nil {
		pc.Close()
		return SessionDescription{}, err
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Info("peer connection state changed", zap.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			t.signalDone()
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		t.logger.Info("remote audio track received", zap.String("codec", remote.Codec().MimeType))
		t.attachedOnce.Do(func() { close(t.attached) })
		go t.readTrack(remote)
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		writer.Close()
		pc.Close()
		return SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		writer.Close()
		pc.Close()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		writer.Close()
		pc.Close()
		return SessionDescription{}, err
	}
	<-gatherComplete

	local := pc.LocalDescription()
	if local == nil {
		writer.Close()
		pc.Close()
		return SessionDescription{}, errors.New("no local description")
	}

	t.mu.Lock()
	t.pc = pc
	t.writer = writer
	t.mu.Unlock()

	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

// readTrack decodes inbound Opus straight to the pipeline sample rate.
func (t *WebRTC) readTrack(remote *webrtc.TrackRemote) {
	defer t.closeInput()

	decoder, err := opus.NewDecoder(rtcSampleRate, 1)
	if err != nil {
		t.logger.Error("creating opus decoder", zap.Error(err))
		t.signalDone()
		return
	}

	samples := make([]int16, rtcFrameSamples*4)
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			t.signalDone()
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := decoder.Decode(pkt.Payload, samples)
		if err != nil {
			t.logger.Warn("opus decode failed", zap.Error(err))
			continue
		}
		chunk := make([]byte, n*2)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(chunk[i*2:], uint16(samples[i]))
		}
		select {
		case t.input <- chunk:
		case <-t.done:
			return
		}
	}
}

// Start waits for the caller's media leg to attach.
func (t *WebRTC) Start(ctx context.Context) error {
	select {
	case <-t.attached:
		t.logger.Info("media leg connected")
		return nil
	case <-time.After(rtcConnectWait):
		return fmt.Errorf("no media leg connected within %s", rtcConnectWait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *WebRTC) Input() <-chan []byte { return t.input }

func (t *WebRTC) Output(audio []byte) error {
	t.mu.Lock()
	writer := t.writer
	t.mu.Unlock()
	if writer == nil {
		return errors.New("media leg not connected")
	}
	select {
	case <-t.done:
		return errors.New("transport closed")
	default:
	}
	writer.WritePCM(audio)
	return nil
}

func (t *WebRTC) Done() <-chan struct{} { return t.done }

func (t *WebRTC) Close() error {
	t.closeOnce.Do(func() {
		t.signalDone()
		t.mu.Lock()
		pc, writer := t.pc, t.writer
		t.mu.Unlock()
		if writer != nil {
			writer.FlushTail()
			writer.Close()
		}
		if pc != nil {
			pc.Close()
		}
	})
	return nil
}

func (t *WebRTC) signalDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *WebRTC) closeInput() {
	t.inputOnce.Do(func() { close(t.input) })
}

// opusWriter encodes 16kHz mono PCM into 20ms Opus frames and writes
// them to the agent track paced at real time.
type opusWriter struct {
	encoder *opus.Encoder
	track   *webrtc.TrackLocalStaticSample
	frames  chan []byte
	stop    chan struct{}

	mu      sync.Mutex
	pcmBuf  []int16
	stopped bool
}

func newOpusWriter(track *webrtc.TrackLocalStaticSample) (*opusWriter, error) {
	encoder, err := opus.NewEncoder(rtcSampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	w := &opusWriter{
		encoder: encoder,
		track:   track,
		frames:  make(chan []byte, 512),
		stop:    make(chan struct{}),
	}
	go w.pace()
	return w, nil
}

func (w *opusWriter) WritePCM(pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := 0; i+1 < len(pcm); i += 2 {
		w.pcmBuf = append(w.pcmBuf, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}

	opusBuf := make([]byte, 4000)
	for len(w.pcmBuf) >= rtcFrameSamples {
		n, err := w.encoder.Encode(w.pcmBuf[:rtcFrameSamples], opusBuf)
		if err == nil && n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			w.push(pkt)
		}
		w.pcmBuf = w.pcmBuf[:copy(w.pcmBuf, w.pcmBuf[rtcFrameSamples:])]
	}
}

// FlushTail pads the remaining PCM to a full frame so the last words are
// not clipped.
func (w *opusWriter) FlushTail() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pcmBuf) == 0 {
		return
	}
	frame := make([]int16, rtcFrameSamples)
	copy(frame, w.pcmBuf)
	w.pcmBuf = w.pcmBuf[:0]
	opusBuf := make([]byte, 4000)
	if n, err := w.encoder.Encode(frame, opusBuf); err == nil && n > 0 {
		pkt := make([]byte, n)
		copy(pkt, opusBuf[:n])
		w.push(pkt)
	}
}

func (w *opusWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.stop)
	}
}

func (w *opusWriter) push(pkt []byte) {
	select {
	case w.frames <- pkt:
	default:
		// Writer backlog full; drop the oldest audio rather than block.
		select {
		case <-w.frames:
		default:
		}
		select {
		case w.frames <- pkt:
		default:
		}
	}
}

func (w *opusWriter) pace() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case pkt := <-w.frames:
				w.track.WriteSample(media.Sample{Data: pkt, Duration: 20 * time.Millisecond})
			default:
			}
		case <-w.stop:
			return
		}
	}
}
