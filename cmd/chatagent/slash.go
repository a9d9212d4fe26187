package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/ChatAgent/pkg/command"
	"github.com/IMBotPlatform/ChatAgent/pkg/server"
)

// slashCommands 是 command.CommandFactory：每行输入构建一棵新的命令树。
func (r *repl) slashCommands() *cobra.Command {
	root := &cobra.Command{
		Use:   "chat",
		Short: "Chat commands",
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "new",
			Short: "Start a new session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				id := uuid.NewString()
				if err := command.FromContext(cmd.Context()).SetSessionID(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started new session %s\n", id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "sessions",
			Short: "List saved sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := r.client.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				r.render.sessions(list, command.FromContext(cmd.Context()).SessionID())
				return nil
			},
		},
		&cobra.Command{
			Use:   "load <session_id|index>",
			Short: "Switch to a saved session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id := args[0]
				// 允许使用 /sessions 输出中的序号
				if n, err := strconv.Atoi(id); err == nil && n > 0 {
					list, err := r.client.Sessions(ctx)
					if err != nil {
						return err
					}
					if n > len(list) {
						return fmt.Errorf("no session #%d", n)
					}
					id = list[n-1].SessionID
				}
				if err := command.FromContext(ctx).SetSessionID(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded session %s\n", id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "history [n]",
			Short: "Show recent messages of the current session",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				limit := server.DefaultHistoryLimit
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 0 {
						return fmt.Errorf("invalid count %q", args[0])
					}
					limit = n
				}
				ctx := cmd.Context()
				hist, err := r.client.History(ctx, command.FromContext(ctx).SessionID(), limit)
				if err != nil {
					return err
				}
				r.render.history(hist.Messages)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the history of the current session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id := command.FromContext(ctx).SessionID()
				n, err := r.client.Clear(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d messages from session %s\n", n, id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "session",
			Short: "Show the current session id",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), command.FromContext(cmd.Context()).SessionID())
			},
		},
		&cobra.Command{
			Use:     "quit",
			Aliases: []string{"exit"},
			Short:   "Leave the chat",
			Args:    cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				command.FromContext(cmd.Context()).Quit()
			},
		},
	)
	return root
}
