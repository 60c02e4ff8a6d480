package pipeline

// Frame is one unit of data flowing through the pipeline. The set of
// frame kinds is closed; stages switch on the concrete type and must
// forward kinds they do not handle.
type Frame interface {
	frame()
}

// AudioFrame carries a chunk of raw audio, inbound from the caller or
// outbound from synthesis.
type AudioFrame struct {
	Data       []byte
	SampleRate int
}

// InterimTranscriptFrame is a provisional recognition hypothesis. It may
// be revised and is never captured into the transcript.
type InterimTranscriptFrame struct {
	Text       string
	Confidence float64
}

// FinalTranscriptFrame is a committed user utterance.
type FinalTranscriptFrame struct {
	Text       string
	Confidence float64
}

// TextFrame is a chunk of assistant text on its way to synthesis.
type TextFrame struct {
	Text string
}

// ControlSignal marks pipeline control points.
type ControlSignal string

const (
	// SignalEndOfResponse closes one assistant response, flushing any
	// buffered assistant text downstream.
	SignalEndOfResponse ControlSignal = "end_of_response"
	// SignalInterrupt cancels in-flight synthesis when the caller starts
	// speaking over the bot.
	SignalInterrupt ControlSignal = "interrupt"
)

// ControlFrame carries a control signal through the pipeline in-band, so
// it stays ordered relative to the data frames around it.
type ControlFrame struct {
	Signal ControlSignal
}

func (AudioFrame) frame()             {}
func (InterimTranscriptFrame) frame() {}
func (FinalTranscriptFrame) frame()   {}
func (TextFrame) frame()              {}
func (ControlFrame) frame()           {}
