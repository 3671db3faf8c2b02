package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"vocalwrite/internal/domain"
	"vocalwrite/internal/ports"
)

// WAVRecorder writes the forwarded PCM of each recording to <dir>/<session>.wav.
type WAVRecorder struct {
	dir string
}

func NewWAVRecorder(dir string) *WAVRecorder {
	return &WAVRecorder{dir: dir}
}

func (r *WAVRecorder) Open(sessionID string) (ports.FrameTap, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	path := filepath.Join(r.dir, sessionID+".wav")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}
	return &wavTap{
		path:    path,
		file:    file,
		encoder: wav.NewEncoder(file, domain.SampleRate, 16, domain.Channels, 1),
		format:  &goaudio.Format{NumChannels: domain.Channels, SampleRate: domain.SampleRate},
	}, nil
}

type wavTap struct {
	path    string
	file    *os.File
	encoder *wav.Encoder
	format  *goaudio.Format

	mu     sync.Mutex
	closed bool
}

func (t *wavTap) WriteFrame(frame domain.AudioFrame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	data := make([]int, len(frame.PCM))
	for i, sample := range frame.PCM {
		data[i] = int(sample)
	}
	return t.encoder.Write(&goaudio.IntBuffer{Format: t.format, Data: data, SourceBitDepth: 16})
}

func (t *wavTap) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	encErr := t.encoder.Close()
	fileErr := t.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize %s: %w", t.path, encErr)
	}
	return fileErr
}
