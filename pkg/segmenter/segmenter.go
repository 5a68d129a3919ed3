// Package segmenter converts a continuous stream of audio frames into
// discrete utterances.
//
// A [Segmenter] owns the full per-session state (listening gate, busy flag,
// accumulation buffer, last-speech timestamp) as one explicit value rather
// than package-level globals, so multiple independent segmenter instances can
// coexist and unit tests can drive it deterministically with an injected
// clock.
//
// The segmenter is a single-threaded, callback-driven pipeline: each arriving
// frame triggers one synchronous classification step through [Segmenter.ProcessFrame]
// and no frame processing overlaps another. It is restartable — Stop followed
// by Start is always valid — but not reentrant while busy: frames arriving
// while the busy flag is set are dropped entirely, with no accumulation and no
// energy computation, so the pipeline never captures the assistant's own
// playback or overlapping utterances.
package segmenter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/audio"
	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/vad"
)

const (
	// defaultSilenceThreshold is the normalised RMS level separating speech
	// from silence for the default energy detector.
	defaultSilenceThreshold = 0.01

	// defaultSilenceTimeout is the trailing-silence duration that confirms the
	// end of an utterance.
	defaultSilenceTimeout = 1500 * time.Millisecond

	// defaultSampleRate is the assumed capture rate when a frame does not
	// carry one.
	defaultSampleRate = 16000
)

// Config holds the segmentation parameters. Threshold and timeout are fixed
// for the lifetime of a Segmenter; they are not renegotiated at runtime.
type Config struct {
	// SilenceThreshold is the normalised RMS amplitude above which a frame is
	// treated as speech. Zero selects the default.
	SilenceThreshold float64

	// SilenceTimeout is the trailing-silence duration after the last speech
	// frame that finalises the current utterance. Zero selects the default.
	SilenceTimeout time.Duration

	// SampleRate is the expected capture rate in Hz. Zero selects the default.
	SampleRate int
}

// Source is an audio capture device. Open acquires the device and returns the
// frame stream; an acquisition failure (permission denied, device busy) must
// return an error without producing a channel, so that no partial capture
// session is ever created.
type Source interface {
	// Open acquires the capture device and starts producing frames. The
	// returned channel is closed when the stream ends or ctx is cancelled.
	Open(ctx context.Context) (<-chan audio.Frame, error)

	// Close releases the capture device. Safe to call more than once.
	Close() error
}

// Utterance is one complete captured speech segment, from onset to confirmed
// trailing silence. It is never empty.
type Utterance struct {
	// Samples is the concatenation of the segment's frames in capture order.
	Samples []int16

	// SampleRate is the capture rate of the samples in Hz.
	SampleRate int
}

// Duration returns the playback duration of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Option is a functional option for configuring a [Segmenter].
type Option func(*Segmenter)

// WithDetector replaces the default energy detector.
func WithDetector(d vad.Detector) Option {
	return func(s *Segmenter) { s.detector = d }
}

// WithClock replaces the wall clock used for silence-timeout decisions.
// Tests use this to drive the trailing-silence window deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Segmenter) { s.now = now }
}

// Segmenter accumulates speech frames into utterances. All methods are safe
// for concurrent use, though frames are expected to arrive from exactly one
// capture loop.
type Segmenter struct {
	detector vad.Detector
	timeout  time.Duration
	now      func() time.Time

	mu         sync.Mutex
	listening  bool
	busy       bool
	buf        []int16
	sampleRate int
	lastSpeech time.Time
}

// New creates a Segmenter with cfg, applying defaults for zero values.
// Options are applied in order.
func New(cfg Config, opts ...Option) *Segmenter {
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = defaultSilenceThreshold
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = defaultSilenceTimeout
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	s := &Segmenter{
		detector:   vad.NewEnergy(cfg.SilenceThreshold),
		timeout:    cfg.SilenceTimeout,
		now:        time.Now,
		sampleRate: cfg.SampleRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the segmenter for a new listening session. Returns an error if
// the segmenter is already listening; state is unchanged in that case.
func (s *Segmenter) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return fmt.Errorf("segmenter: already listening")
	}
	s.listening = true
	s.busy = false
	s.buf = nil
	return nil
}

// Stop disarms the segmenter and clears any accumulated buffer synchronously.
// A stopped segmenter drops all frames until the next Start.
func (s *Segmenter) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listening = false
	s.busy = false
	s.buf = nil
}

// SetBusy sets the busy flag. While busy, incoming frames are dropped without
// classification, suppressing new segment starts until the prior utterance's
// round trip has completed.
func (s *Segmenter) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
}

// Busy reports whether a prior utterance is still being processed.
func (s *Segmenter) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Capturing reports whether an utterance is currently being accumulated.
func (s *Segmenter) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening && len(s.buf) > 0
}

// ProcessFrame runs one classification step for a single frame. When the
// frame confirms the end of an utterance, the accumulated segment is returned
// with ok=true and the buffer is cleared atomically; otherwise ok is false.
//
// Frames arriving while the segmenter is stopped or busy are dropped.
// Trailing-silence frames that arrive while a segment is open are kept in the
// segment; the frame whose silence gap exceeds the timeout is not.
func (s *Segmenter) ProcessFrame(f audio.Frame) (Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening || s.busy {
		return Utterance{}, false
	}

	d := s.detector.Classify(f.Samples)
	now := s.now()

	if d.State == vad.StateSpeech {
		if len(s.buf) == 0 {
			slog.Debug("utterance onset", "level", d.Level)
		}
		if f.SampleRate > 0 {
			s.sampleRate = f.SampleRate
		}
		s.buf = append(s.buf, f.Samples...)
		s.lastSpeech = now
		return Utterance{}, false
	}

	// Silence with nothing accumulated: steady quiet, nothing to do.
	if len(s.buf) == 0 {
		return Utterance{}, false
	}

	if now.Sub(s.lastSpeech) > s.timeout {
		return s.finalizeLocked()
	}

	// Silence inside the timeout window stays in the open segment.
	s.buf = append(s.buf, f.Samples...)
	return Utterance{}, false
}

// Flush finalises whatever is currently buffered without waiting for the
// trailing-silence timeout. Used when the capture stream ends mid-segment.
// Returns ok=false when nothing is buffered.
func (s *Segmenter) Flush() (Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening || s.busy {
		return Utterance{}, false
	}
	return s.finalizeLocked()
}

// finalizeLocked emits the buffered segment and clears the buffer. Must be
// called with s.mu held. An empty buffer yields no emission.
func (s *Segmenter) finalizeLocked() (Utterance, bool) {
	if len(s.buf) == 0 {
		return Utterance{}, false
	}
	u := Utterance{Samples: s.buf, SampleRate: s.sampleRate}
	s.buf = nil
	slog.Debug("utterance finalised", "samples", len(u.Samples), "duration", u.Duration())
	return u, true
}
