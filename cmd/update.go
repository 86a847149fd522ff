package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/output"
)

var updateCmd = &cobra.Command{
	Use:     "update [split-id]",
	Aliases: []string{"edit"},
	Short:   "Update a split",
	Long: `Update fields of a split. Only the flags given are changed.

--participant replaces the participant list and --expense replaces all
expenses; --add-expense appends to the existing ones.`,
	GroupID: "core",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{clientTimeout: 5 * time.Second})
		if err != nil {
			return err
		}
		defer a.Close()

		current, err := a.lookupSplit(ctx, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		patch, err := patchFromFlags(cmd, current.Split)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if patch.IsEmpty() {
			err := fmt.Errorf("nothing to update")
			output.Error("%v", err)
			return err
		}

		env, err := a.engine.UpdateSplit(ctx, args[0], patch)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		a.autoSyncAfterMutation(ctx)

		output.Success("UPDATED %s", env.SplitID)
		return nil
	},
}

// patchFromFlags builds a patch against current, which supplies the
// participants expenses refer to when --participant is not given.
func patchFromFlags(cmd *cobra.Command, current models.Split) (models.SplitPatch, error) {
	var patch models.SplitPatch
	flags := cmd.Flags()

	if flags.Changed("name") {
		name, _ := flags.GetString("name")
		patch.Name = &name
	}
	if clear, _ := flags.GetBool("clear-date"); clear {
		patch.ClearDate = true
	} else if date, _ := flags.GetString("date"); date != "" {
		d, err := parseDate(date)
		if err != nil {
			return patch, err
		}
		patch.Date = d
	}
	if flags.Changed("private") {
		private, _ := flags.GetBool("private")
		patch.IsPrivate = &private
	}

	participants := current.Participants
	names, stdinUsed, err := flagLines(cmd, "participant", false)
	if err != nil {
		return patch, err
	}
	if len(names) > 0 {
		ps, err := buildParticipants(names, current.Participants)
		if err != nil {
			return patch, err
		}
		patch.Participants = &ps
		participants = ps
	}

	specs, stdinUsed, err := flagLines(cmd, "expense", stdinUsed)
	if err != nil {
		return patch, err
	}
	added, _, err := flagLines(cmd, "add-expense", stdinUsed)
	if err != nil {
		return patch, err
	}
	switch {
	case len(specs) > 0:
		es, err := parseExpenses(append(specs, added...), participants)
		if err != nil {
			return patch, err
		}
		patch.Expenses = &es
	case len(added) > 0:
		es, err := parseExpenses(added, participants)
		if err != nil {
			return patch, err
		}
		all := append(append([]models.Expense(nil), current.Expenses...), es...)
		patch.Expenses = &all
	}
	return patch, nil
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().String("name", "", "New name")
	updateCmd.Flags().String("date", "", "New date (YYYY-MM-DD, today, yesterday, -3d, friday)")
	updateCmd.Flags().Bool("clear-date", false, "Remove the date")
	updateCmd.Flags().Bool("private", false, "Set privacy (--private=false to share)")
	updateCmd.Flags().StringArrayP("participant", "p", nil, "Replace participants (repeatable)")
	updateCmd.Flags().StringArrayP("expense", "e", nil, "Replace expenses AMOUNT:PAYER[:DESCRIPTION[:NAMES]] (repeatable)")
	updateCmd.Flags().StringArray("add-expense", nil, "Append an expense (repeatable)")
}
