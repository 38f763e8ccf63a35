package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/streamzone/sz/internal/db"
	"github.com/streamzone/sz/internal/output"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Create the local store",
	Long:    `Creates the .streamzone directory with the local SQLite store and seeds the default roles and permissions.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := cfg.BaseDir()
		if err != nil {
			return err
		}

		if _, err := os.Stat(db.Path(dir)); err == nil {
			output.Warning("%s already exists", db.Dir(dir))
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		store, err := db.Initialize(dir)
		if err != nil {
			return err
		}
		defer store.Close()

		output.Success("INITIALIZED %s", db.Dir(dir))
		output.Info("Next: sz register  (the first account becomes admin)")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
