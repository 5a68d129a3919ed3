// Package vad provides frame-level voice activity detection for the
// segmentation pipeline.
//
// A Detector classifies a single frame of PCM samples as speech or silence.
// Detection is synchronous by design: Classify returns immediately, making it
// suitable for the low-latency callback loop that gates utterance capture.
// The default implementation is a pure-Go energy detector that compares the
// frame's root-mean-square amplitude against a fixed threshold.
package vad

import "github.com/IhateCreatingUserNames2/TEddyBear/pkg/audio"

// State is the classification of a single frame.
type State int

const (
	// StateSilence indicates the frame's energy is at or below the threshold.
	StateSilence State = iota

	// StateSpeech indicates the frame's energy exceeds the threshold.
	StateSpeech
)

// String returns a human-readable state name for logs.
func (s State) String() string {
	if s == StateSpeech {
		return "speech"
	}
	return "silence"
}

// Decision is the result of classifying one frame.
type Decision struct {
	// State is the speech/silence classification.
	State State

	// Level is the measured RMS amplitude, normalised to [0, 1].
	Level float64
}

// Detector classifies audio frames. Implementations must be stateless or
// otherwise safe to call from a single goroutine in frame-arrival order; a
// Detector is owned by exactly one segmenter at a time.
type Detector interface {
	// Classify analyses the samples of one frame and returns the decision.
	// It must not block and must not retain the slice.
	Classify(samples []int16) Decision
}

// Energy is an RMS-threshold Detector. A frame whose normalised RMS amplitude
// exceeds Threshold is speech; everything else is silence.
type Energy struct {
	// Threshold is the silence threshold in the normalised [0, 1] RMS scale.
	// Typical values for close-mic 16 kHz capture are 0.01–0.02.
	Threshold float64
}

// NewEnergy returns an Energy detector with the given threshold.
func NewEnergy(threshold float64) *Energy {
	return &Energy{Threshold: threshold}
}

// Classify implements [Detector].
func (e *Energy) Classify(samples []int16) Decision {
	level := audio.RMS(samples)
	if level > e.Threshold {
		return Decision{State: StateSpeech, Level: level}
	}
	return Decision{State: StateSilence, Level: level}
}
