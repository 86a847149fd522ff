package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/syncconfig"
)

var (
	versionStr string

	// Global flags
	configFlag   string
	dbFlag       string
	logLevelFlag string
	offlineFlag  bool

	cfg     *syncconfig.Config
	cfgErr  error
	cfgPath string
)

// SetVersion sets the version string
func SetVersion(v string) {
	versionStr = v
}

var rootCmd = &cobra.Command{
	Use:   "splitsync",
	Short: "Offline-first sync for shared expense splits",
	Long: `splitsync - keep expense splits on this machine and sync them with a records server.

Every change is written locally first and queued; the queue is pushed and the
server's copies are pulled whenever the server is reachable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.OnInitialize(initConfig)

	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)
	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })

	// Custom usage template that shows aliases inline
	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Split Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "config file (default ~/.config/splitsync/config.yaml, or $SPLITSYNC_CONFIG)")
	pf.StringVar(&dbFlag, "db", "", "local database path (overrides db_path)")
	pf.StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error (overrides log_level)")
	pf.BoolVar(&offlineFlag, "offline", false, "never contact the server")
}

// initConfig loads the layered config once per invocation. A load error is
// kept and reported by the commands that need the config, so that
// "config set" can still repair a broken file.
func initConfig() {
	cfgPath = configFlag
	if cfgPath == "" {
		cfgPath, cfgErr = syncconfig.Path()
		if cfgErr != nil {
			setupLogging(logLevelFlag)
			return
		}
	}

	cfg, cfgErr = syncconfig.LoadFile(cfgPath)
	if cfgErr != nil {
		cfg = nil
		setupLogging(logLevelFlag)
		return
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}

	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	setupLogging(level)
}

// loadedConfig returns the config loaded by initConfig.
func loadedConfig() (*syncconfig.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		initConfig()
		if cfgErr != nil {
			return nil, cfgErr
		}
	}
	return cfg, nil
}

// configPath returns the file config commands read and write.
func configPath() (string, error) {
	if cfgPath != "" {
		return cfgPath, nil
	}
	if configFlag != "" {
		return configFlag, nil
	}
	return syncconfig.Path()
}
