package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/output"
	"github.com/azula9713/yae-their-share/internal/syncengine"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List splits with unresolved sync conflicts",
	Long: `With conflict_policy=manual, a split changed both here and on the server
keeps the local version and stores the server's copy until you resolve it.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		conflicts, err := a.engine.Conflicts(ctx)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return output.JSON(conflicts)
		}
		if len(conflicts) == 0 {
			fmt.Println("No conflicts")
			return nil
		}
		for i := range conflicts {
			printConflict(&conflicts[i])
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [split-id]",
	Short: "Resolve a sync conflict by keeping one version",
	Long: `Keep the local version (it is queued to overwrite the server) or the
server's version (local changes and their queued writes are dropped).
Without --keep you are asked interactively.`,
	GroupID: "sync",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{clientTimeout: 5 * time.Second})
		if err != nil {
			return err
		}
		defer a.Close()

		env, err := a.lookupSplit(ctx, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if !env.HasConflict() {
			output.Error("%s has no conflict", args[0])
			return syncengine.ErrNoConflict
		}

		keep, _ := cmd.Flags().GetString("keep")
		if keep == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				err := fmt.Errorf("--keep local|remote is required when not running in a terminal")
				output.Error("%v", err)
				return err
			}
			printConflict(env)
			if keep, err = promptKeep(); err != nil {
				output.Error("%v", err)
				return err
			}
		}
		choice, err := parseKeep(keep)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if _, err := a.engine.ResolveConflict(ctx, args[0], choice); err != nil {
			output.Error("%v", err)
			return err
		}
		a.autoSyncAfterMutation(ctx)
		output.Success("RESOLVED %s (kept %s)", args[0], strings.ToLower(keep))
		return nil
	},
}

func parseKeep(s string) (syncengine.Choice, error) {
	switch strings.ToLower(s) {
	case "local", "mine":
		return syncengine.KeepLocal, nil
	case "remote", "server", "theirs":
		return syncengine.KeepRemote, nil
	}
	return 0, fmt.Errorf("invalid --keep %q (local or remote)", s)
}

func promptKeep() (string, error) {
	var keep string
	err := huh.NewSelect[string]().
		Title("Which version should win?").
		Options(
			huh.NewOption("Keep my local version", "local"),
			huh.NewOption("Take the server's version", "remote"),
		).
		Value(&keep).
		Run()
	return keep, err
}

func printConflict(env *models.Envelope) {
	fmt.Println(output.FormatSplitShort(env))
	fmt.Println(output.IndentString(describeSide("local ", env.Split), 2))
	if env.ConflictData != nil {
		fmt.Println(output.IndentString(describeSide("remote", *env.ConflictData), 2))
	}
}

func describeSide(label string, s models.Split) string {
	return fmt.Sprintf("%s  %q  %s  %dp/%de  updated %s",
		label, s.Name, output.FormatAmount(s.Total()), len(s.Participants), len(s.Expenses),
		output.FormatTimeAgo(s.UpdatedAt))
}

func init() {
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(resolveCmd)

	conflictsCmd.Flags().Bool("json", false, "JSON output")
	resolveCmd.Flags().String("keep", "", "Version to keep: local or remote")
}
