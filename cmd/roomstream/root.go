package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roomstream",
		Short: "Follow the live event stream of a chat room",
		Long: `roomstream subscribes to <endpoint>/chat/<room>/stream and prints the room's
messages as they arrive. Broken streams are reconnected with exponential backoff.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, date))
	return rootCmd
}

func newVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "roomstream %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
