package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/output"
)

var showCmd = &cobra.Command{
	Use:     "show [split-id]",
	Aliases: []string{"view"},
	Short:   "Show a split with its expenses and balances",
	GroupID: "core",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		env, err := a.lookupSplit(ctx, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(env)
		}
		if md, _ := cmd.Flags().GetBool("markdown"); md {
			rendered, err := output.RenderMarkdown(output.SplitMarkdown(env.Split))
			if err != nil {
				output.Error("render: %v", err)
				return err
			}
			fmt.Print(rendered)
			return nil
		}
		fmt.Print(output.FormatSplitLong(env))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().Bool("json", false, "JSON output")
	showCmd.Flags().BoolP("markdown", "m", false, "Render as a markdown document")
}
