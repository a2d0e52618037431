// Package cmd implements the quiver command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quiver",
	Short: "Quiver - personal knowledge base with an AI assistant",
	Long: `Quiver is a personal knowledge-base HTTP service. It stores notes,
links and insights in PostgreSQL, enriches new items with AI summaries and
tags, and answers questions grounded in the stored knowledge, either focused
on one item (streaming chat) or across the whole base (broad query).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
