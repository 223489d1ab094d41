package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Operator tools for the privchat server",
	Long: `chatctl prepares configuration for the privchat server: it hashes the
shared room password, mints session tokens for scripted clients and reads
message history straight from a pebble store.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
