package cmd

import (
	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/output"
)

var cleanupCmd = &cobra.Command{
	Use:     "cleanup",
	Short:   "Delete completed operations older than the retention period",
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		days, _ := cmd.Flags().GetInt("days")
		if !cmd.Flags().Changed("days") {
			days = a.cfg.OperationRetentionDays
		}
		n, err := a.engine.Store().Cleanup(ctx, days)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Removed %d completed operation(s) older than %d day(s)", n, days)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Int("days", 0, "Retention in days (default: operation_retention_days)")
}
