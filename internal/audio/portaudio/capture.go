//go:build portaudio

package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"vocalwrite/internal/domain"
	"vocalwrite/internal/ports"
)

// framesPerBuffer is the host buffer size requested from PortAudio.
const framesPerBuffer = 512

// Capture opens the default PortAudio input device.
type Capture struct{}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Start(_ context.Context, cfg ports.AudioConfig) (ports.AudioSource, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = domain.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = domain.Channels
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}

	buffer := make([]float32, framesPerBuffer*cfg.Channels)
	stream, err := pa.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), framesPerBuffer, buffer)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("open input stream failed: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("start input stream failed: %w", err)
	}
	return &source{stream: stream, buffer: buffer}, nil
}

type source struct {
	mu      sync.Mutex
	stream  *pa.Stream
	buffer  []float32
	pending []float32
	stopped bool
}

var errStopped = errors.New("portaudio source stopped")

func (s *source) ReadSamples(buf []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, errStopped
	}
	if len(s.pending) == 0 {
		if err := s.stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
			return 0, err
		}
		s.pending = s.buffer
	}
	n := copy(buf, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	termErr := pa.Terminate()
	return errors.Join(stopErr, closeErr, termErr)
}
