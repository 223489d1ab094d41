package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"privchat/internal/repository"
	"privchat/pkg/logger"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [pebble-path]",
	Short: "Print the newest messages of a pebble message store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeFn, err := repository.OpenPebbleMessageRepository(args[0], logger.NewNop())
		if err != nil {
			return err
		}
		defer closeFn()

		messages, err := repo.ListRecent(context.Background(), historyLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, m := range messages {
			if err := enc.Encode(m); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d messages\n", len(messages))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "number of messages")
	rootCmd.AddCommand(historyCmd)
}
