package domain

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// SampleRate is the only capture rate the recognition backend accepts.
	SampleRate = 16000
	// Channels is fixed to mono.
	Channels = 1
)

// SessionState models the recognition session lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateConnecting SessionState = "connecting"
	SessionStateStreaming  SessionState = "streaming"
	SessionStateStopping   SessionState = "stopping"
)

// ErrorCode identifies the class of a failure surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAcquisition   ErrorCode = "acquisition"
	ErrorCodeProtocol      ErrorCode = "protocol"
	ErrorCodeTransport     ErrorCode = "transport"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeDurationLimit ErrorCode = "duration_limit"
	ErrorCodePolish        ErrorCode = "polish"
	ErrorCodeClipboard     ErrorCode = "clipboard"
)

// RecognitionEventKind identifies a decoded server message.
type RecognitionEventKind string

const (
	RecognitionEventError      RecognitionEventKind = "error"
	RecognitionEventTranscript RecognitionEventKind = "transcript"
	RecognitionEventFinal      RecognitionEventKind = "final"
)

// RecognitionEvent is one decoded message from the recognition backend.
type RecognitionEvent struct {
	Kind    RecognitionEventKind `json:"kind"`
	Code    int                  `json:"code,omitempty"`
	Message string               `json:"message,omitempty"`
	Text    string               `json:"text,omitempty"`
	Stable  bool                 `json:"stable,omitempty"`
}

// RecognitionError is a non-zero status reported by the recognition backend.
type RecognitionError struct {
	Code    int
	Message string
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("ASR error: %s (code: %d)", e.Message, e.Code)
}

// AudioFrame is a fixed-size block of 16-bit PCM plus a smoothed level in [0,1].
type AudioFrame struct {
	PCM    []int16
	Volume float64
}

// Bytes encodes the PCM samples as little-endian int16.
func (f AudioFrame) Bytes() []byte {
	out := make([]byte, len(f.PCM)*2)
	for i, sample := range f.PCM {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// Status summarizes the current session for the UI.
type Status struct {
	State      SessionState `json:"state"`
	SessionID  string       `json:"sessionId,omitempty"`
	Recording  bool         `json:"recording"`
	Paused     bool         `json:"paused"`
	Transcript string       `json:"transcript"`
	Interim    string       `json:"interim"`
	Message    string       `json:"message,omitempty"`
}

// TranscriptRecord is a completed dictation kept in history.
type TranscriptRecord struct {
	ID        string        `json:"id"`
	Raw       string        `json:"raw"`
	Polished  string        `json:"polished"`
	Duration  time.Duration `json:"duration"`
	Copied    bool          `json:"copied"`
	CreatedAt time.Time     `json:"createdAt"`
}
