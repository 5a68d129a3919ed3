// Package main provides the teddy CLI, the bear-side driver of the magic
// teddy bear pipeline.
//
// Usage:
//
//	teddy [flags] <command>
//
// Commands:
//
//	talk - capture utterances from a PCM stream and play the bear's replies
package main

import (
	"fmt"
	"os"

	"github.com/IhateCreatingUserNames2/TEddyBear/cmd/teddy/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
