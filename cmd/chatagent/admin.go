package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/ChatAgent/pkg/server"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List saved sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.client().Sessions(cmd.Context())
			if err != nil {
				return err
			}
			newRenderer(cmd.OutOrStdout()).sessions(list, "")
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <session_id>",
		Short: "Show recent messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, err := opts.client().History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			newRenderer(cmd.OutOrStdout()).history(hist.Messages)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", server.DefaultHistoryLimit, "number of messages")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session_id>",
		Short: "Delete the history of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := opts.client().Clear(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "History cleared for session %s (%d messages)\n", args[0], n)
			return nil
		},
	}
}
