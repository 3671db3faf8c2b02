package audio

import (
	"math"

	"vocalwrite/internal/domain"
)

// DefaultFrameSize is the number of samples per emitted frame (64 ms at 16 kHz).
const DefaultFrameSize = 1024

// volumeDecay is the per-frame falloff applied to the level meter.
const volumeDecay = 0.85

// FrameProducer turns arbitrarily sized float sample chunks into fixed-size
// PCM frames with a smoothed volume estimate. It is not safe for concurrent
// use; one producer belongs to one capture goroutine.
type FrameProducer struct {
	window     []float32
	filled     int
	lastVolume float64
	emit       func(domain.AudioFrame)
}

func NewFrameProducer(frameSize int, emit func(domain.AudioFrame)) *FrameProducer {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	if emit == nil {
		emit = func(domain.AudioFrame) {}
	}
	return &FrameProducer{
		window: make([]float32, frameSize),
		emit:   emit,
	}
}

// FrameSize returns the configured window length.
func (p *FrameProducer) FrameSize() int {
	return len(p.window)
}

// Write buffers samples and emits one frame per filled window.
func (p *FrameProducer) Write(samples []float32) {
	for len(samples) > 0 {
		n := copy(p.window[p.filled:], samples)
		p.filled += n
		samples = samples[n:]
		if p.filled == len(p.window) {
			p.emitWindow(p.window)
			p.filled = 0
		}
	}
}

// Flush emits the partially filled window, if any, as a short frame.
func (p *FrameProducer) Flush() {
	if p.filled == 0 {
		return
	}
	p.emitWindow(p.window[:p.filled])
	p.filled = 0
}

func (p *FrameProducer) emitWindow(window []float32) {
	rms := RMS(window)
	volume := math.Max(rms, p.lastVolume*volumeDecay)
	p.lastVolume = volume
	p.emit(domain.AudioFrame{PCM: ToPCM16(window), Volume: volume})
}

// ToPCM16 converts float samples to signed 16-bit PCM. Negative samples scale
// by 32768 and non-negative by 32767 after clamping to [-1,1].
func ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, sample := range samples {
		s := math.Max(-1, math.Min(1, float64(sample)))
		if s < 0 {
			out[i] = int16(s * 0x8000)
		} else {
			out[i] = int16(s * 0x7fff)
		}
	}
	return out
}

// RMS returns the root mean square of the samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range samples {
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
