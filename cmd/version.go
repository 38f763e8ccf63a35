package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamzone/sz/internal/output"
	szversion "github.com/streamzone/sz/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the sz version",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(output.Stdout, "sz %s\n", version)

		if check, _ := cmd.Flags().GetBool("check"); !check {
			return nil
		}
		if szversion.IsDevelopmentVersion(version) {
			output.Info("development build, update check skipped")
			return nil
		}
		n := szversion.Latest(cmd.Context(), version)
		if n == nil {
			output.Info("up to date")
			return nil
		}
		output.Warning("sz %s is available", n.LatestVersion)
		if n.UpdateCommand != "" {
			output.Info("  %s", n.UpdateCommand)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("check", false, "check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}
