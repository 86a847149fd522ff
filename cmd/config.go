package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azula9713/yae-their-share/internal/output"
	"github.com/azula9713/yae-their-share/internal/syncconfig"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Read and change settings",
	GroupID: "system",
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print the effective value of a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadedConfig()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		v, err := syncconfig.Get(c, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Store a setting in the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := syncconfig.Set(path, args[0], args[1]); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("%s = %s", args[0], displayValue(args[0], args[1]))
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset [key]",
	Short: "Remove a setting from the config file, restoring its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := syncconfig.Set(path, args[0], ""); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("%s reset to default", args[0])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Print every setting",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadedConfig()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		path, _ := configPath()
		fmt.Printf("# %s\n", path)
		for _, key := range syncconfig.Keys() {
			v, err := syncconfig.Get(c, key)
			if err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", key, displayValue(key, v))
		}
		return nil
	},
}

// displayValue masks the token.
func displayValue(key, v string) string {
	if key != "token" || v == "" {
		return v
	}
	if len(v) <= 8 {
		return "********"
	}
	return v[:4] + "…" + v[len(v)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd, configSetCmd, configUnsetCmd, configListCmd)
}
