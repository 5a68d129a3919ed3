package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IhateCreatingUserNames2/TEddyBear/internal/client"
	"github.com/IhateCreatingUserNames2/TEddyBear/pkg/segmenter"
)

var (
	inputPath        string
	outputPath       string
	sampleRate       int
	silenceThreshold float64
	silenceTimeoutMs int
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Capture utterances from a PCM stream and play the bear's replies",
	Long: `Capture utterances from a raw PCM16 little-endian mono stream, post
each one to the backend, and write the reply audio as raw PCM16.

Use "-" to read from stdin or write to stdout, which composes with capture
and playback tools:

  arecord -f S16_LE -r 16000 -c 1 -t raw | teddy talk -i - -o - | aplay -f S16_LE -r 24000 -c 1 -t raw`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := os.Stdin
		if inputPath != "-" {
			f, err := os.Open(inputPath)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer f.Close()
			in = f
		}

		out := os.Stdout
		if outputPath != "-" {
			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			out = f
		}

		seg := segmenter.New(segmenter.Config{
			SilenceThreshold: silenceThreshold,
			SilenceTimeout:   time.Duration(silenceTimeoutMs) * time.Millisecond,
			SampleRate:       sampleRate,
		})

		opts := []client.Option{
			client.WithPlayer(&client.WriterPlayer{W: out}),
		}
		if verbose {
			opts = append(opts, client.WithStatusFunc(func(status string) {
				fmt.Fprintln(os.Stderr, "status:", status)
			}))
		}
		pipeline := client.New(seg, serverURL+"/api/talk", opts...)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		src := &client.ReaderSource{R: in, SampleRate: sampleRate}
		if err := pipeline.Run(ctx, src); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	talkCmd.Flags().StringVarP(&inputPath, "input", "i", "-", "raw PCM16 input file, or - for stdin")
	talkCmd.Flags().StringVarP(&outputPath, "output", "o", "-", "raw PCM16 output file, or - for stdout")
	talkCmd.Flags().IntVar(&sampleRate, "sample-rate", 16000, "input sample rate in Hz")
	talkCmd.Flags().Float64Var(&silenceThreshold, "silence-threshold", 0.01, "normalised RMS level below which a frame counts as silence")
	talkCmd.Flags().IntVar(&silenceTimeoutMs, "silence-timeout-ms", 1500, "trailing silence that finalises an utterance, in milliseconds")
}
