package commands

import (
	"github.com/spf13/cobra"
)

var (
	serverURL string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "teddy",
	Short: "Bear-side client for the magic teddy bear backend",
	Long: `teddy drives the bear side of the magic teddy bear pipeline.

It segments a PCM16 audio stream into utterances, posts each utterance to a
running teddyd backend, and renders the spoken replies.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8585", "base URL of the teddyd backend")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log status transitions to stderr")

	rootCmd.AddCommand(talkCmd)
}
