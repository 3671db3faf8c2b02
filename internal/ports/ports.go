package ports

import (
	"context"
	"errors"
	"time"

	"vocalwrite/internal/domain"
)

// ErrConnClosed is returned by RecognitionConn sends once the connection has
// been closed without a transport error.
var ErrConnClosed = errors.New("recognition connection closed")

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSource is a live microphone handle producing float samples in [-1,1].
type AudioSource interface {
	ReadSamples(buf []float32) (int, error)
	Stop() error
}

// AudioCapture acquires microphone handles.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSource, error)
}

// SignedURLSource issues a short-lived, pre-signed recognition URL.
type SignedURLSource interface {
	SignedURL(ctx context.Context) (string, error)
}

// RecognitionConn is an open connection to the recognition backend.
type RecognitionConn interface {
	SendAudio(pcm []byte) error
	SendEnd() error
	Events() <-chan domain.RecognitionEvent
	Wait() error
	Close() error
}

// RecognitionTransport opens recognition connections.
type RecognitionTransport interface {
	Dial(ctx context.Context, url string) (RecognitionConn, error)
}

// FrameTap receives every frame forwarded to the backend.
type FrameTap interface {
	WriteFrame(frame domain.AudioFrame) error
	Close() error
}

// AudioRecorder opens a FrameTap per recording.
type AudioRecorder interface {
	Open(sessionID string) (FrameTap, error)
}

// SessionMetrics records session counters.
type SessionMetrics interface {
	SessionStarted(ctx context.Context)
	SessionEnded(ctx context.Context, elapsed time.Duration)
	FrameSent(ctx context.Context, bytes int)
	FrameDropped(ctx context.Context)
	SessionError(ctx context.Context, code domain.ErrorCode)
}

// Polisher rewrites a transcript into polished text.
type Polisher interface {
	Polish(ctx context.Context, text string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// Notifier shows desktop notifications.
type Notifier interface {
	Notify(title string, message string) error
}

// HistoryStore keeps completed transcripts.
type HistoryStore interface {
	Save(ctx context.Context, record domain.TranscriptRecord) error
	List(ctx context.Context, limit int) ([]domain.TranscriptRecord, error)
}

// RecognitionSink receives session callbacks.
type RecognitionSink interface {
	TranscriptChanged(text string)
	InterimTranscriptChanged(text string)
	RecordingStateChanged(recording bool)
	AudioLevelChanged(level float64)
	SessionError(code domain.ErrorCode, detail string)
	StreamCompleted(transcript string)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	RecognitionSink
	DurationChanged(elapsed time.Duration)
	PolishStateChanged(polishing bool)
	PolishedTranscript(raw string, polished string, copied bool)
}
