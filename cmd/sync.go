package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/output"
	"github.com/azula9713/yae-their-share/internal/syncengine"
	"github.com/azula9713/yae-their-share/internal/syncstatus"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Push queued changes and pull your splits from the server",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if statusOnly, _ := cmd.Flags().GetBool("status"); statusOnly {
			return printStatus(ctx, a, false)
		}
		if err := a.requireUser(); err != nil {
			output.Error("%v", err)
			return err
		}

		if !a.online(ctx) {
			output.Warning("server unreachable at %s, changes stay queued", a.cfg.RemoteURL)
			return syncengine.ErrOffline
		}

		res, err := a.engine.ForceSync(ctx)
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput && res != nil {
			if jerr := output.JSON(res); jerr != nil {
				return jerr
			}
			return err
		}
		if res != nil {
			printSyncResult(res)
		}
		if isOffline(err) {
			output.Warning("%v, changes stay queued", err)
			return err
		}
		if err != nil {
			output.Error("sync: %v", err)
			return err
		}
		if st := a.engine.Status(); st.StuckOperations > 0 {
			output.Warning("%d operation(s) stuck, see 'splitsync status' and 'splitsync reset --retries'", st.StuckOperations)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show sync state and queued operations",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		jsonOutput, _ := cmd.Flags().GetBool("json")
		return printStatus(ctx, a, jsonOutput)
	},
}

func printSyncResult(res *syncengine.Result) {
	output.Success("Synced in %s", res.Duration.Round(time.Millisecond))
	fmt.Printf("  pushed %d", res.Pushed)
	if res.PushFailed > 0 {
		fmt.Printf(" (%d failed)", res.PushFailed)
	}
	if res.Superseded > 0 {
		fmt.Printf(" (%d superseded)", res.Superseded)
	}
	fmt.Println()
	if res.PullSkip {
		fmt.Println("  pull skipped")
	} else {
		fmt.Printf("  pulled %d (%d new, %d updated)\n", res.Pulled, res.Inserted, res.Updated)
	}
	if res.Conflicts > 0 {
		fmt.Printf("  conflicts %d", res.Conflicts)
		if res.Requeued > 0 {
			fmt.Printf(" (%d re-queued)", res.Requeued)
		}
		fmt.Println()
	}
	if res.Cleaned > 0 {
		fmt.Printf("  cleaned %d old operations\n", res.Cleaned)
	}
}

type statusReport struct {
	User       string                  `json:"user,omitempty"`
	Remote     string                  `json:"remote"`
	Online     bool                    `json:"online"`
	Status     syncstatus.Status       `json:"status"`
	Stuck      []models.OperationEntry `json:"stuckOperations,omitempty"`
	StorageErr string                  `json:"storageError,omitempty"`
}

// printStatus refreshes connectivity and prints the status snapshot followed
// by any stuck operations.
func printStatus(ctx context.Context, a *app, jsonOutput bool) error {
	online := a.online(ctx)
	st := a.engine.Status()
	st.IsOnline = online

	stuck, err := a.engine.StuckOperations(ctx)
	if err != nil {
		output.Error("%v", err)
		return err
	}

	if jsonOutput {
		r := statusReport{User: a.engine.UserID(), Remote: a.cfg.RemoteURL, Online: online, Status: st, Stuck: stuck}
		if a.engine.OfflineOnly() {
			r.StorageErr = st.Error
		}
		return output.JSON(r)
	}

	user := a.engine.UserID()
	if user == "" {
		user = "(not logged in)"
	}
	fmt.Printf("User: %s\n", user)
	fmt.Printf("Remote: %s\n", a.cfg.RemoteURL)
	fmt.Print(output.FormatSyncStatus(st))

	if len(stuck) > 0 {
		fmt.Println()
		fmt.Println(output.SectionHeader("STUCK OPERATIONS"))
		for _, e := range stuck {
			fmt.Println(output.IndentString(output.FormatOperation(e, a.cfg.MaxRetries), 2))
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)

	syncCmd.Flags().Bool("status", false, "Show sync status without syncing")
	syncCmd.Flags().Bool("json", false, "JSON output")
	statusCmd.Flags().Bool("json", false, "JSON output")
}

// isOffline reports whether err means the sync never reached the server.
func isOffline(err error) bool {
	return errors.Is(err, syncengine.ErrOffline) || errors.Is(err, syncengine.ErrOfflineOnly)
}
