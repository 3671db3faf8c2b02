package usecase

import (
	"vocalwrite/internal/audio"
	"vocalwrite/internal/domain"
	"vocalwrite/internal/ports"
)

// pumpAudioFrames runs on its own goroutine for the lifetime of one
// microphone handle. It never blocks on the session: frames that do not fit
// in the queue are reported through dropped and discarded.
func pumpAudioFrames(
	attempt uint64,
	source ports.AudioSource,
	frameSize int,
	frames chan<- taggedFrame,
	dropped func(),
	ended func(error),
) {
	producer := audio.NewFrameProducer(frameSize, func(frame domain.AudioFrame) {
		select {
		case frames <- taggedFrame{attempt: attempt, frame: frame}:
		default:
			dropped()
		}
	})

	buf := make([]float32, producer.FrameSize())
	for {
		n, err := source.ReadSamples(buf)
		if n > 0 {
			producer.Write(buf[:n])
		}
		if err != nil {
			producer.Flush()
			ended(err)
			return
		}
	}
}
