package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/output"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [split-id...]",
	Aliases: []string{"rm"},
	Short:   "Delete splits",
	Long:    `Marks splits as deleted locally and queues the deletion for the server.`,
	GroupID: "core",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{clientTimeout: 5 * time.Second})
		if err != nil {
			return err
		}
		defer a.Close()

		var firstErr error
		deleted := 0
		for _, id := range args {
			if _, err := a.engine.DeleteSplit(ctx, id); err != nil {
				output.Error("%s: %v", id, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			output.Success("DELETED %s", id)
			deleted++
		}
		if deleted > 0 {
			a.autoSyncAfterMutation(ctx)
		}
		return firstErr
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
