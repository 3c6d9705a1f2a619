package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "chat2png",
	Short:         "Render chat conversations to PNG or JPEG",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	_, _ = os.Stderr.WriteString("chat2png: " + err.Error() + "\n")
	os.Exit(1)
}
