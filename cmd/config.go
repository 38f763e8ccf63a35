package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamzone/sz/internal/config"
	"github.com/streamzone/sz/internal/output"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Read and change client settings",
	GroupID: "system",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of a key (after env and defaults)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(output.Stdout, v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a key to the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.Path()
		if err != nil {
			return err
		}
		// edit the file as written so env overrides and defaults are not persisted
		file, err := config.LoadFile(p)
		if err != nil {
			return err
		}
		if err := file.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.SaveFile(p, file); err != nil {
			return err
		}
		output.Success("%s = %s", args[0], args[1])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every key with its effective value",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range config.Keys() {
			v, _ := cfg.Get(k)
			if k == "cloud.api_key" && v != "" {
				v = "********"
			}
			fmt.Fprintf(output.Stdout, "%s = %s\n", k, v)
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Fprintln(output.Stdout, p)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
