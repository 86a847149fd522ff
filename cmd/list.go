package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your splits",
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		splits, err := a.engine.Splits(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		opts := listOptions{}
		opts.search, _ = cmd.Flags().GetString("search")
		opts.pending, _ = cmd.Flags().GetBool("pending")
		opts.conflicts, _ = cmd.Flags().GetBool("conflicts")
		opts.sort, _ = cmd.Flags().GetString("sort")
		opts.limit, _ = cmd.Flags().GetInt("limit")
		splits, err = filterSplits(splits, opts)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(splits)
		}
		if len(splits) == 0 {
			fmt.Println("No splits found")
			return nil
		}
		for i := range splits {
			fmt.Println(output.FormatSplitShort(&splits[i]))
		}
		return nil
	},
}

var deletedCmd = &cobra.Command{
	Use:     "deleted",
	Short:   "Show deleted splits",
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		splits, err := a.engine.DeletedSplits(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(splits)
		}
		if len(splits) == 0 {
			fmt.Println("No deleted splits")
			return nil
		}
		for i := range splits {
			fmt.Println(output.FormatSplitDeleted(&splits[i]))
		}
		return nil
	},
}

type listOptions struct {
	search    string
	pending   bool
	conflicts bool
	sort      string
	limit     int
}

// filterSplits applies the list flags. Sort keys: updated (default, newest
// first), name, total (largest first), created.
func filterSplits(splits []models.Envelope, opts listOptions) ([]models.Envelope, error) {
	out := make([]models.Envelope, 0, len(splits))
	search := strings.ToLower(opts.search)
	for _, env := range splits {
		if opts.pending && !env.PendingSync {
			continue
		}
		if opts.conflicts && !env.HasConflict() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(env.Name), search) &&
			!strings.Contains(strings.ToLower(env.SplitID), search) {
			continue
		}
		out = append(out, env)
	}

	var less func(a, b models.Envelope) bool
	switch opts.sort {
	case "", "updated":
		less = func(a, b models.Envelope) bool { return a.UpdatedAt.After(b.UpdatedAt) }
	case "created":
		less = func(a, b models.Envelope) bool { return a.CreatedAt.After(b.CreatedAt) }
	case "name":
		less = func(a, b models.Envelope) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case "total":
		less = func(a, b models.Envelope) bool { return a.Total() > b.Total() }
	default:
		return nil, fmt.Errorf("invalid sort %q (updated, created, name, total)", opts.sort)
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })

	if opts.limit > 0 && len(out) > opts.limit {
		out = out[:opts.limit]
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deletedCmd)

	listCmd.Flags().StringP("search", "s", "", "Filter by name or id")
	listCmd.Flags().Bool("pending", false, "Only splits with unsynced changes")
	listCmd.Flags().Bool("conflicts", false, "Only splits awaiting conflict resolution")
	listCmd.Flags().String("sort", "updated", "Sort by updated, created, name or total")
	listCmd.Flags().IntP("limit", "n", 0, "Maximum splits to show")
	listCmd.Flags().Bool("json", false, "JSON output")

	deletedCmd.Flags().Bool("json", false, "JSON output")
}
