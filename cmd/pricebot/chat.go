package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pricebot/internal/cli"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot from the terminal",
		Long: `Run the dialog in the terminal against the configured database.

Chooser rows are numbered; type a number to pick a row.`,
		RunE: runChat,
	}

	cmd.Flags().Int64("user", 1, "user id to chat as")

	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig
	userID, _ := cmd.Flags().GetInt64("user")

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sessions, closeSessions, err := initSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	console := cli.NewConsole(newRouter(store, sessions, cfg), os.Stdin, os.Stdout, userID, appLogger())
	return console.Run(ctx)
}
