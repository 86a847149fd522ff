package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/azula9713/yae-their-share/internal/output"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Recover from stuck or inconsistent sync state",
	Long: `Recovery actions for the local store:

  --retries        re-arm stuck operations so the next sync retries them
  --pending        clear pending flags on splits with no queued operation
  --accept-remote  resolve every conflict of the signed-in user with the
                   server's version
  --all            erase every split and operation stored locally`,
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		retries, _ := cmd.Flags().GetBool("retries")
		pending, _ := cmd.Flags().GetBool("pending")
		acceptRemote, _ := cmd.Flags().GetBool("accept-remote")
		all, _ := cmd.Flags().GetBool("all")
		if !retries && !pending && !acceptRemote && !all {
			err := fmt.Errorf("choose at least one of --retries, --pending, --accept-remote, --all")
			output.Error("%v", err)
			return err
		}

		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()
		store := a.engine.Store()

		if all || acceptRemote {
			yes, _ := cmd.Flags().GetBool("yes")
			what := "the local side of every conflict"
			if all {
				what = "all local data"
			}
			ok, err := confirm(yes, fmt.Sprintf("Discard %s?", what))
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if !ok {
				output.Info("aborted")
				return nil
			}
		}

		if all {
			if err := store.ClearAll(ctx); err != nil {
				output.Error("%v", err)
				return err
			}
			output.Success("Cleared all local data")
			return nil
		}
		if retries {
			n, err := a.engine.ResetRetries(ctx)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			output.Success("Re-armed %d operation(s)", n)
		}
		if pending {
			n, err := store.ResetPendingFlags(ctx)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			output.Success("Cleared pending flag on %d split(s)", n)
		}
		if acceptRemote {
			if err := a.requireUser(); err != nil {
				output.Error("%v", err)
				return err
			}
			n, err := store.ResolveAllWithRemote(ctx, a.engine.UserID())
			if err != nil {
				output.Error("%v", err)
				return err
			}
			output.Success("Took the server's version for %d split(s)", n)
		}
		return nil
	},
}

// confirm asks a yes/no question. yes skips the prompt; without a terminal
// the answer is no.
func confirm(yes bool, question string) (bool, error) {
	if yes {
		return true, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("refusing without --yes when not running in a terminal")
	}
	var ok bool
	err := huh.NewConfirm().Title(question).Affirmative("Yes").Negative("No").Value(&ok).Run()
	return ok, err
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().Bool("retries", false, "Re-arm stuck operations")
	resetCmd.Flags().Bool("pending", false, "Clear stale pending flags")
	resetCmd.Flags().Bool("accept-remote", false, "Resolve all conflicts with the server's version")
	resetCmd.Flags().Bool("all", false, "Erase all local data")
	resetCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}
