package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/azula9713/yae-their-share/internal/output"
	"github.com/azula9713/yae-their-share/internal/syncconfig"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in as a user with a bearer token",
	Long: `Stores the user id and token in the config file. Signing in as a different
user first removes the previous user's local splits and queued changes.

Tokens are minted by the server operator with 'splitsync-server token --user ID'.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		token, _ := cmd.Flags().GetString("token")
		remote, _ := cmd.Flags().GetString("remote")

		if token == "" {
			token = strings.TrimSpace(os.Getenv("SPLITSYNC_TOKEN"))
		}
		if user == "" || token == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				err := fmt.Errorf("--user and --token are required when not running in a terminal")
				output.Error("%v", err)
				return err
			}
			if err := promptLogin(&user, &token); err != nil {
				output.Error("%v", err)
				return err
			}
		}

		path, err := configPath()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		values := map[string]string{"user_id": user, "token": token}
		if remote != "" {
			values["remote_url"] = remote
		}
		if err := syncconfig.Update(path, values); err != nil {
			output.Error("%v", err)
			return err
		}

		// Reload so the engine below sees the new user and token.
		initConfig()
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		output.Success("Logged in as %s", a.engine.UserID())
		if a.online(ctx) {
			fmt.Println("Server reachable, run 'splitsync sync' to fetch your splits")
		} else {
			output.Warning("server %s is not reachable yet", a.cfg.RemoteURL)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove your local data",
	Long: `Clears the stored token and user id and deletes the user's local splits and
queued operations. Changes that were never synced are lost.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		user := a.engine.UserID()
		if user == "" {
			output.Info("Not logged in")
			return nil
		}

		if pending := a.engine.Status().PendingOperations; pending > 0 {
			yes, _ := cmd.Flags().GetBool("yes")
			ok, err := confirm(yes, fmt.Sprintf("%d change(s) were never synced and will be lost. Log out?", pending))
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if !ok {
				output.Info("aborted")
				return nil
			}
		}

		if err := a.engine.SetUserID(ctx, ""); err != nil {
			output.Error("%v", err)
			return err
		}
		path, err := configPath()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := syncconfig.Update(path, map[string]string{"user_id": "", "token": ""}); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Logged out %s", user)
		return nil
	},
}

func promptLogin(user, token *string) error {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("User id").Value(user).Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("user id is required")
			}
			return nil
		}),
		huh.NewInput().Title("Token").EchoMode(huh.EchoModePassword).Value(token).Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("token is required")
			}
			return nil
		}),
	)).Run()
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().String("user", "", "User id")
	loginCmd.Flags().String("token", "", "Bearer token (or $SPLITSYNC_TOKEN)")
	loginCmd.Flags().String("remote", "", "Records server URL")
	logoutCmd.Flags().BoolP("yes", "y", false, "Do not ask before discarding unsynced changes")
}
