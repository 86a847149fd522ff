package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/output"
)

var createCmd = &cobra.Command{
	Use:     "create [name]",
	Aliases: []string{"add", "new"},
	Short:   "Create a new split",
	Long: `Create a new split. It is stored locally at once and pushed on the next sync.

Expenses are given as AMOUNT:PAYER[:DESCRIPTION[:NAME,NAME...]]; without a
name list the expense is shared by every participant.`,
	Example: `  splitsync create "Ski trip" -p Ana -p Ben -e "120:Ana:Cabin" -e "30:Ben:Fuel:Ben"
  splitsync create "Groceries" -p Ana -p Ben -e @receipts.txt --date yesterday
  splitsync create --file split.json`,
	GroupID: "core",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		split, err := splitFromCreateFlags(cmd, args)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{clientTimeout: 5 * time.Second})
		if err != nil {
			return err
		}
		defer a.Close()

		env, err := a.engine.CreateSplit(ctx, split)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		a.autoSyncAfterMutation(ctx)
		if cur, err := a.engine.Split(ctx, env.SplitID); err == nil {
			env = cur
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(env)
		}
		output.Success("CREATED %s", env.SplitID)
		fmt.Println(output.FormatSplitShort(env))
		return nil
	},
}

func splitFromCreateFlags(cmd *cobra.Command, args []string) (models.Split, error) {
	var split models.Split
	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		s, err := readSplitFile(file)
		if err != nil {
			return models.Split{}, err
		}
		split = s
	}

	if len(args) > 0 {
		split.Name = args[0]
	}
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		split.Name = name
	}
	if split.Name == "" {
		return models.Split{}, fmt.Errorf("name is required")
	}
	if id, _ := cmd.Flags().GetString("id"); id != "" {
		split.SplitID = id
	}
	if date, _ := cmd.Flags().GetString("date"); date != "" {
		d, err := parseDate(date)
		if err != nil {
			return models.Split{}, err
		}
		split.Date = d
	}
	if cmd.Flags().Changed("private") {
		split.IsPrivate, _ = cmd.Flags().GetBool("private")
	}

	names, stdinUsed, err := flagLines(cmd, "participant", file == "-")
	if err != nil {
		return models.Split{}, err
	}
	if len(names) > 0 {
		ps, err := buildParticipants(names, split.Participants)
		if err != nil {
			return models.Split{}, err
		}
		split.Participants = ps
	}
	specs, _, err := flagLines(cmd, "expense", stdinUsed)
	if err != nil {
		return models.Split{}, err
	}
	if len(specs) > 0 {
		es, err := parseExpenses(specs, split.Participants)
		if err != nil {
			return models.Split{}, err
		}
		split.Expenses = append(split.Expenses, es...)
	}
	return split, nil
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().String("name", "", "Split name (alternative to positional argument)")
	createCmd.Flags().String("id", "", "Split id (generated when empty)")
	createCmd.Flags().String("date", "", "Date of the split (YYYY-MM-DD, today, yesterday, -3d, friday)")
	createCmd.Flags().Bool("private", false, "Hide the split from other users")
	createCmd.Flags().StringArrayP("participant", "p", nil, "Participant name (repeatable, - for stdin, @file)")
	createCmd.Flags().StringArrayP("expense", "e", nil, "Expense AMOUNT:PAYER[:DESCRIPTION[:NAMES]] (repeatable, - for stdin, @file)")
	createCmd.Flags().StringP("file", "f", "", "Read the split from a JSON file ('-' for stdin)")
	createCmd.Flags().Bool("json", false, "JSON output")
}
