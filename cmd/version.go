package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/output"
	"github.com/azula9713/yae-their-share/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version and compare it with the server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Print(versionStr)
			return nil
		}
		fmt.Printf("splitsync version %s\n", versionStr)

		if check, _ := cmd.Flags().GetBool("check"); !check || offlineFlag {
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		a, err := openAppOrFail(ctx, appOptions{clientTimeout: 5 * time.Second})
		if err != nil {
			return err
		}
		defer a.Close()

		res := version.Check(ctx, versionStr, func(ctx context.Context) (string, error) {
			h, err := a.client.HealthCheck(ctx)
			if err != nil {
				return "", err
			}
			return h.Version, nil
		})
		switch {
		case res.Error != nil:
			output.Warning("could not reach %s: %v", a.cfg.RemoteURL, res.Error)
		case res.ServerVersion == "":
			fmt.Println("server version: unknown")
		default:
			fmt.Printf("server version: %s\n", res.ServerVersion)
		}
		if !res.Compatible {
			output.Warning("server major version differs, sync may fail")
		}
		if res.ClientBehind {
			fmt.Printf("\nUpdate available: %s → %s\n", versionStr, res.ServerVersion)
			if c := version.UpdateCommand(res.ServerVersion); c != "" {
				fmt.Printf("  %s\n", c)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("short", false, "Print only the version")
	versionCmd.Flags().Bool("check", true, "Compare with the server version")
}
