package main

import (
	"github.com/sandevgo/mnemo/pkg/log"
	"github.com/sandevgo/mnemo/pkg/srv"
	"github.com/spf13/cobra"
)

var pruneConversationID string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete memories past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		app := NewApp(ctx)
		defer srv.CloseServices(ctx, app.Services())

		deleted, err := app.Memory.Prune(ctx, pruneConversationID)
		if err != nil {
			return err
		}

		log.FromCtx(ctx).Info().Int64("deleted", deleted).Msg("prune complete")
		return nil
	},
}

func init() {
	pruneCmd.Flags().StringVar(&pruneConversationID, "conversation", "", "restrict pruning to one conversation id")
	rootCmd.AddCommand(pruneCmd)
}
