package client

import (
	"context"
	"fmt"
	"io"

	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/audio"
)

// WriterPlayer renders reply audio as raw PCM16 little-endian bytes to an
// [io.Writer]. Pipe it into a playback tool (e.g. aplay or sox) or a file
// for later listening.
type WriterPlayer struct {
	W io.Writer
}

// Play encodes samples and writes them out. The sample rate is not embedded
// in the raw stream; the consumer must know it.
func (p *WriterPlayer) Play(ctx context.Context, samples []int16, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.W.Write(audio.EncodePCM16(samples)); err != nil {
		return fmt.Errorf("client: write reply audio: %w", err)
	}
	return nil
}

var _ Player = (*WriterPlayer)(nil)
