package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/output"
	"github.com/azula9713/yae-their-share/pkg/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live TUI dashboard for sync state",
	Long: `Launch a live-updating TUI showing your splits with their sync badges,
stuck operations and recent sync cycles. The engine keeps syncing in the
background while the monitor runs.

Key bindings:
  Tab/Shift+Tab  Switch panels
  ↑/↓ or k/j     Select row
  /              Filter splits
  s              Sync now
  r              Force refresh
  ?              Toggle help
  q              Quit`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openAppOrFail(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireUser(); err != nil {
			output.Error("%v", err)
			return err
		}

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = 2 * time.Second
		}

		if err := a.engine.Start(ctx); err != nil {
			output.Error("%v", err)
			return err
		}
		if a.probe != nil {
			a.probe.Start(ctx)
		}

		model := monitor.NewModel(ctx, a.engine, interval, versionStr)
		model.MaxRetries = a.cfg.MaxRetries
		defer model.Close()

		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running monitor: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", 2*time.Second, "Refresh interval (default 2s)")
}
