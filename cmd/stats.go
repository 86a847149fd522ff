package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/output"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show counts for the local store and operation log",
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.engine.Store().Stats(ctx, a.cfg.MaxRetries)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(st)
		}

		fmt.Println(output.SectionHeader("SPLITS"))
		fmt.Printf("  active:           %d\n", st.Splits)
		fmt.Printf("  deleted:          %d\n", st.Deleted)
		fmt.Printf("  pending sync:     %d\n", st.PendingSync)
		fmt.Printf("  locally modified: %d\n", st.LocallyModified)
		fmt.Printf("  conflicts:        %d\n", st.Conflicts)
		fmt.Println()
		fmt.Println(output.SectionHeader("OPERATIONS"))
		fmt.Printf("  total:            %d\n", st.Operations)
		fmt.Printf("  pending:          %d\n", st.Pending)
		fmt.Printf("  stuck:            %d\n", st.Stuck)
		fmt.Printf("  completed:        %d\n", st.Completed)
		if path := a.engine.Store().Path(); path != "" {
			fmt.Println()
			fmt.Printf("Database: %s\n", path)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "Show recent sync cycles",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		n, _ := cmd.Flags().GetInt("limit")
		entries, err := a.engine.History(ctx, n)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No sync history")
			return nil
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s  pushed %d  pulled %d", e.StartedAt.Local().Format("2006-01-02 15:04:05"), e.Pushed, e.Pulled)
			if e.PushFailed > 0 {
				line += fmt.Sprintf("  failed %d", e.PushFailed)
			}
			if e.Conflicts > 0 {
				line += fmt.Sprintf("  conflicts %d", e.Conflicts)
			}
			line += fmt.Sprintf("  %s", e.Duration)
			if e.Error != "" {
				line += "  error: " + e.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)

	statsCmd.Flags().Bool("json", false, "JSON output")
	historyCmd.Flags().IntP("limit", "n", 20, "Number of cycles to show")
	historyCmd.Flags().Bool("json", false, "JSON output")
}
