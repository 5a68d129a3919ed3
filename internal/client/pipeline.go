// Package client implements the bear-side capture pipeline: it feeds audio
// frames through the utterance segmenter, posts finalised utterances to the
// backend talk endpoint, and hands the reply audio to a [Player].
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/audio"
	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/segmenter"
)

// Status values reported through the status callback as the pipeline moves
// between phases.
const (
	StatusListening = "listening"
	StatusThinking  = "thinking"
	StatusSpeaking  = "speaking"
)

// Player receives decoded reply audio. Implementations decide how to render
// it (speaker, file, test capture).
type Player interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithHTTPClient overrides the HTTP client used for talk requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Pipeline) {
		p.hc = hc
	}
}

// WithPlayer sets the sink for reply audio. Without one, replies are
// discarded after logging.
func WithPlayer(pl Player) Option {
	return func(p *Pipeline) {
		p.player = pl
	}
}

// WithStatusFunc registers a callback invoked on phase changes. Useful for
// driving status LEDs or a UI.
func WithStatusFunc(fn func(status string)) Option {
	return func(p *Pipeline) {
		p.onStatus = fn
	}
}

// Pipeline connects a frame source to the backend. Create with [New], then
// call [Pipeline.Run] with an open source.
type Pipeline struct {
	seg      *segmenter.Segmenter
	endpoint string
	hc       *http.Client
	player   Player
	onStatus func(string)
	wg       sync.WaitGroup
}

// New creates a [Pipeline] posting utterances to endpoint, e.g.
// "http://localhost:8585/api/talk".
func New(seg *segmenter.Segmenter, endpoint string, opts ...Option) *Pipeline {
	p := &Pipeline{
		seg:      seg,
		endpoint: endpoint,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.hc == nil {
		p.hc = &http.Client{Timeout: 60 * time.Second}
	}
	return p
}

// Run opens src and processes frames until the source is exhausted or ctx is
// cancelled. When the source fails to open the segmenter is never started,
// so a later Run call can reuse it. On a clean source close any buffered
// audio is flushed as a final utterance.
func (p *Pipeline) Run(ctx context.Context, src segmenter.Source) error {
	frames, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("client: open source: %w", err)
	}
	defer src.Close()

	if err := p.seg.Start(); err != nil {
		return fmt.Errorf("client: start segmenter: %w", err)
	}
	defer p.seg.Stop()
	p.setStatus(StatusListening)

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return ctx.Err()

		case f, ok := <-frames:
			if !ok {
				if u, ok := p.seg.Flush(); ok {
					p.dispatch(ctx, u)
				}
				p.wg.Wait()
				return nil
			}
			if u, ok := p.seg.ProcessFrame(f); ok {
				p.dispatch(ctx, u)
			}
		}
	}
}

// dispatch sends one utterance to the backend in the background. The
// segmenter stays busy until the reply has been played, so frames captured
// while the bear is thinking or speaking are dropped.
func (p *Pipeline) dispatch(ctx context.Context, u segmenter.Utterance) {
	p.seg.SetBusy(true)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.seg.SetBusy(false)
			p.setStatus(StatusListening)
		}()

		p.setStatus(StatusThinking)
		reply, err := p.talk(ctx, u)
		if err != nil {
			slog.Error("talk request failed", "err", err)
			return
		}
		if p.player == nil {
			slog.Debug("reply discarded, no player configured", "samples", len(reply))
			return
		}
		p.setStatus(StatusSpeaking)
		if err := p.player.Play(ctx, reply, u.SampleRate); err != nil {
			slog.Error("playback failed", "err", err)
		}
	}()
}

// talkRequest mirrors the backend's talk endpoint schema.
type talkRequest struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sampleRate"`
}

type talkResponse struct {
	Audio   string `json:"audio"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

// talk posts one utterance and returns the decoded reply samples.
func (p *Pipeline) talk(ctx context.Context, u segmenter.Utterance) ([]int16, error) {
	payload, err := json.Marshal(talkRequest{
		Audio:      base64.StdEncoding.EncodeToString(audio.EncodePCM16(u.Samples)),
		SampleRate: u.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("client: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: post utterance: %w", err)
	}
	defer resp.Body.Close()

	var tr talkResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&tr); err != nil {
		return nil, fmt.Errorf("client: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: backend returned %d: %s: %s", resp.StatusCode, tr.Error, tr.Details)
	}

	raw, err := base64.StdEncoding.DecodeString(tr.Audio)
	if err != nil {
		return nil, fmt.Errorf("client: decode reply audio: %w", err)
	}
	return audio.DecodePCM16(raw), nil
}

func (p *Pipeline) setStatus(status string) {
	if p.onStatus != nil {
		p.onStatus(status)
	}
}
