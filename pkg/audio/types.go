// Package audio provides the frame type and PCM16 helpers shared by the
// capture, segmentation, and transport stages of the TEddyBear pipeline.
//
// Frames are the atomic unit of audio transport: the capture source produces
// them, the segmenter classifies and accumulates them, and the transport layer
// encodes the accumulated samples for upload.
package audio

import "time"

// Frame is a fixed-size window of mono PCM samples captured at a known sample
// rate. A Frame is immutable once captured; stages must not mutate Samples.
type Frame struct {
	// Samples holds signed 16-bit mono PCM samples.
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for the default capture pipeline).
	SampleRate int

	// Offset marks when this frame was captured, relative to stream start.
	Offset time.Duration
}

// Duration returns the playback duration of the frame. Returns zero when the
// sample rate is unset.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
