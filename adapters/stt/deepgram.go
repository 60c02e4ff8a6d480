package stt

import (
	"context"
	"fmt"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

const deepgramDefaultModel = "nova-2"

// Deepgram implements SpeechToText over the Deepgram live transcription
// websocket. Interim hypotheses are forwarded alongside finals so the
// pipeline can react while the caller is still speaking.
type Deepgram struct {
	apiKey   string
	model    string
	language string
	logger   *zap.Logger

	mu           sync.Mutex
	audioSeconds float64
}

var _ repositories.SpeechToText = (*Deepgram)(nil)

func NewDeepgram(apiKey, model, language string, logger *zap.Logger) *Deepgram {
	if model == "" {
		model = deepgramDefaultModel
	}
	if language == "" {
		language = "en"
	}
	return &Deepgram{apiKey: apiKey, model: model, language: language, logger: logger}
}

func (d *Deepgram) Provider() string { return "deepgram" }

func (d *Deepgram) AudioSeconds() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.audioSeconds
}

func (d *Deepgram) addAudio(bytes, sampleRate int) {
	// 16-bit mono PCM.
	d.mu.Lock()
	d.audioSeconds += float64(bytes) / float64(sampleRate*2)
	d.mu.Unlock()
}

func (d *Deepgram) Start(ctx context.Context, config repositories.AudioConfig) (repositories.RecognitionStream, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("deepgram: API key missing")
	}

	language := config.Language
	if language == "" {
		language = d.language
	}
	options := &clientinterfaces.LiveTranscriptionOptions{
		Model:          d.model,
		Language:       language,
		Encoding:       config.Encoding,
		SampleRate:     config.SampleRate,
		Channels:       1,
		InterimResults: true,
		SmartFormat:    true,
		VadEvents:      true,
	}

	events := make(chan repositories.Recognition, 16)
	cb := &listenCallback{events: events, closed: make(chan struct{}), logger: d.logger}

	dg, err := listen.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("deepgram: connect failed")
	}

	return &deepgramStream{
		parent:     d,
		client:     dg,
		callback:   cb,
		sampleRate: config.SampleRate,
		events:     events,
	}, nil
}

type deepgramStream struct {
	parent     *Deepgram
	client     *listen.WSCallback
	callback   *listenCallback
	sampleRate int
	events     chan repositories.Recognition

	closeOnce sync.Once
}

func (s *deepgramStream) Write(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}
	if err := s.client.WriteBinary(audio); err != nil {
		return fmt.Errorf("deepgram: write audio: %w", err)
	}
	s.parent.addAudio(len(audio), s.sampleRate)
	return nil
}

func (s *deepgramStream) Events() <-chan repositories.Recognition { return s.events }

func (s *deepgramStream) Close() error {
	s.closeOnce.Do(func() {
		// Silence the callback before closing the channel it writes to.
		close(s.callback.closed)
		s.client.Stop()
		close(s.events)
	})
	return nil
}

// listenCallback adapts Deepgram live events onto the recognition
// channel. Sends never block so a stalled consumer cannot wedge the
// SDK's read loop.
type listenCallback struct {
	events chan<- repositories.Recognition
	closed chan struct{}
	logger *zap.Logger
}

func (c *listenCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	best := mr.Channel.Alternatives[0]
	if best.Transcript == "" {
		return nil
	}
	rec := repositories.Recognition{
		Text:       best.Transcript,
		Final:      mr.IsFinal,
		Confidence: best.Confidence,
	}
	select {
	case <-c.closed:
		return nil
	default:
	}
	select {
	case c.events <- rec:
	default:
		c.logger.Warn("dropping recognition event, consumer is behind")
	}
	return nil
}

func (c *listenCallback) Error(er *msginterfaces.ErrorResponse) error {
	c.logger.Error("deepgram stream error",
		zap.String("type", er.Type),
		zap.String("description", er.Description))
	return nil
}

func (c *listenCallback) Open(*msginterfaces.OpenResponse) error                   { return nil }
func (c *listenCallback) Metadata(*msginterfaces.MetadataResponse) error           { return nil }
func (c *listenCallback) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }
func (c *listenCallback) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error   { return nil }
func (c *listenCallback) Close(*msginterfaces.CloseResponse) error                 { return nil }
func (c *listenCallback) UnhandledEvent([]byte) error                              { return nil }
