package client

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/audio"
	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/segmenter"
)

// defaultFrameSamples is 20ms of audio at 16 kHz.
const defaultFrameSamples = 320

// ReaderSource adapts an [io.Reader] of raw PCM16 little-endian mono bytes
// into a frame source. It covers file playback and piped capture tools; a
// real microphone source would implement [segmenter.Source] the same way.
type ReaderSource struct {
	// R supplies raw PCM16 bytes.
	R io.Reader

	// SampleRate of the data in R. Default: 16000.
	SampleRate int

	// FrameSamples is the number of samples per emitted frame.
	// Default: 320 (20ms at 16 kHz).
	FrameSamples int

	cancel context.CancelFunc
}

// Open starts reading frames from R. The returned channel closes when R is
// exhausted or ctx is cancelled.
func (s *ReaderSource) Open(ctx context.Context) (<-chan audio.Frame, error) {
	if s.R == nil {
		return nil, errors.New("client: reader source has no reader")
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	frameSamples := s.FrameSamples
	if frameSamples <= 0 {
		frameSamples = defaultFrameSamples
	}

	ctx, s.cancel = context.WithCancel(ctx)
	out := make(chan audio.Frame)
	go func() {
		defer close(out)
		var offset time.Duration
		buf := make([]byte, frameSamples*2)
		for {
			n, err := io.ReadFull(s.R, buf)
			if n >= 2 {
				samples := audio.DecodePCM16(buf[:n])
				f := audio.Frame{Samples: samples, SampleRate: rate, Offset: offset}
				offset += f.Duration()
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// Close stops the read loop. The underlying reader is not closed; the caller
// owns it.
func (s *ReaderSource) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

var _ segmenter.Source = (*ReaderSource)(nil)
