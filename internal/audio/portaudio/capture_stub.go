//go:build !portaudio

package portaudio

import (
	"context"
	"errors"

	"vocalwrite/internal/ports"
)

// ErrUnsupported is returned when the binary was built without the portaudio tag.
var ErrUnsupported = errors.New("audio backend portaudio is not available in this build (rebuild with -tags portaudio)")

// Capture reports ErrUnsupported on every Start.
type Capture struct{}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSource, error) {
	return nil, ErrUnsupported
}
