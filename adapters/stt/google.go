package stt

import (
	"context"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// Google implements SpeechToText using Google Cloud Speech streaming
// recognition. Credentials come from the ambient service account.
type Google struct {
	language string
	logger   *zap.Logger

	mu           sync.Mutex
	audioSeconds float64
}

var _ repositories.SpeechToText = (*Google)(nil)

func NewGoogle(language string, logger *zap.Logger) *Google {
	if language == "" {
		language = "en-US"
	}
	return &Google{language: language, logger: logger}
}

func (g *Google) Provider() string { return "google" }

func (g *Google) AudioSeconds() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.audioSeconds
}

func (g *Google) addAudio(bytes, sampleRate int) {
	// 16-bit mono PCM.
	g.mu.Lock()
	g.audioSeconds += float64(bytes) / float64(sampleRate*2)
	g.mu.Unlock()
}

func (g *Google) Start(ctx context.Context, config repositories.AudioConfig) (repositories.RecognitionStream, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := googleEncoding(config.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, err
	}

	language := config.Language
	if language == "" {
		language = g.language
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        encoding,
					SampleRateHertz: int32(config.SampleRate),
					LanguageCode:    language,
				},
				InterimResults: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	gs := &googleStream{
		parent:     g,
		client:     client,
		stream:     stream,
		sampleRate: config.SampleRate,
		events:     make(chan repositories.Recognition, 16),
	}
	go gs.receive()
	return gs, nil
}

type googleStream struct {
	parent     *Google
	client     *speech.Client
	stream     speechpb.Speech_StreamingRecognizeClient
	sampleRate int
	events     chan repositories.Recognition

	closeOnce sync.Once
}

func (gs *googleStream) Write(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}
	if err := gs.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	gs.parent.addAudio(len(audio), gs.sampleRate)
	return nil
}

func (gs *googleStream) Events() <-chan repositories.Recognition { return gs.events }

func (gs *googleStream) Close() error {
	var err error
	gs.closeOnce.Do(func() {
		err = gs.stream.CloseSend()
	})
	return err
}

func (gs *googleStream) receive() {
	defer close(gs.events)
	defer gs.client.Close()

	for {
		resp, err := gs.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			gs.parent.logger.Warn("recognition stream closed", zap.Error(err))
			return
		}
		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			best := result.Alternatives[0]
			gs.events <- repositories.Recognition{
				Text:       best.Transcript,
				Final:      result.IsFinal,
				Confidence: float64(best.Confidence),
			}
		}
	}
}

func googleEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "linear16", "LINEAR16", "WAV":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "mulaw", "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
