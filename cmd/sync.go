package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamzone/sz/internal/models"
	"github.com/streamzone/sz/internal/output"
	szsync "github.com/streamzone/sz/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull shared data and push pending rows to the cloud",
	Long: `Without flags, pulls roles, permissions and the catalog and then
pushes every pending row. Rows that fail to push stay pending.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		pushOnly, _ := cmd.Flags().GetBool("push")
		pullOnly, _ := cmd.Flags().GetBool("pull")
		statusOnly, _ := cmd.Flags().GetBool("status")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if statusOnly {
			// status never needs the cloud
			return printSyncStatus(szsync.New(store, nil, szsync.Options{}))
		}

		c, err := newCoordinator(cmd.Context(), store)
		if err != nil {
			return err
		}
		defer c.Remote().Close()

		// pull first so local seeds adopt the cloud copies instead of duplicating them
		if !pushOnly {
			roles := c.PullRoles(cmd.Context())
			perms := c.PullPermissions(cmd.Context())
			links := c.PullRolePermissions(cmd.Context())
			cat := c.PullCatalog(cmd.Context())
			output.Info("Pulled %d roles, %d permissions, %d grants, %d categories, %d services, %d offers",
				len(roles), len(perms), len(links), len(cat.Categories), len(cat.Services), len(cat.Offers))
		}
		if !pullOnly {
			rep := c.PushAll(cmd.Context())
			if rep.Skipped {
				output.Warning("another sync is running, push skipped")
			} else {
				printPushReport(rep)
			}
		}
		return nil
	},
}

func printPushReport(rep szsync.Report) {
	rows := make([][]string, 0, len(rep.Results))
	for _, r := range rep.Results {
		if r.Total == 0 && r.LoadErr == nil {
			continue
		}
		note := ""
		if r.LoadErr != nil {
			note = r.LoadErr.Error()
		}
		rows = append(rows, []string{string(r.Kind), fmt.Sprint(r.Total), fmt.Sprint(r.Success), fmt.Sprint(r.Errors), note})
	}
	success, errs := rep.Totals()
	if len(rows) > 0 {
		fmt.Fprintln(output.Stdout, output.Table([]string{"KIND", "PENDING", "PUSHED", "FAILED", ""}, rows))
	}
	if errs > 0 {
		output.Warning("pushed %d rows, %d failed (they stay pending)", success, errs)
		return
	}
	output.Success("pushed %d rows in %s", success, rep.Finished.Sub(rep.Started).Round(time.Millisecond))
}

func printSyncStatus(c *szsync.Coordinator) error {
	st, err := c.Status()
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(models.AllKinds))
	for _, k := range models.AllKinds {
		s := st.States[k]
		rows = append(rows, []string{
			string(k),
			fmt.Sprint(st.Pending[k]),
			output.FormatTimeAgo(s.LastPushAt),
			fmt.Sprintf("%d/%d", s.LastPushSuccess, s.LastPushSuccess+s.LastPushErrors),
			output.FormatTimeAgo(s.LastPullAt),
		})
	}
	fmt.Fprintln(output.Stdout, output.Table([]string{"KIND", "PENDING", "LAST PUSH", "OK", "LAST PULL"}, rows))
	output.Info("%d rows pending", st.TotalPending())
	return nil
}

var syncUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Push pending users only",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := newCoordinator(cmd.Context(), store)
		if err != nil {
			return err
		}
		defer c.Remote().Close()

		res := c.PushPendingUsers(cmd.Context())
		switch {
		case res.Skipped:
			output.Warning("another sync is running, push skipped")
		case res.LoadErr != nil:
			return res.LoadErr
		case res.Errors > 0:
			output.Warning("pushed %d of %d users, %d failed", res.Success, res.Total, res.Errors)
		default:
			output.Success("pushed %d users", res.Success)
		}
		return nil
	},
}

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Push on every local change and follow remote role changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		debounce, _ := cmd.Flags().GetDuration("debounce")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := newCoordinator(cmd.Context(), store)
		if err != nil {
			return err
		}
		defer c.Remote().Close()

		output.Info("Watching %s (Ctrl-C to stop)", store.BaseDir())
		return c.Watch(cmd.Context(), szsync.WatchOptions{
			Debounce: debounce,
			OnPush: func(rep szsync.Report) {
				if success, errs := rep.Totals(); success+errs > 0 {
					output.Info("%s  pushed %d, failed %d", time.Now().Format("15:04:05"), success, errs)
				}
			},
			OnPull: func(coll string, n int) {
				output.Info("%s  %s changed remotely, pulled %d", time.Now().Format("15:04:05"), coll, n)
			},
		})
	},
}

func init() {
	syncCmd.Flags().Bool("push", false, "push only")
	syncCmd.Flags().Bool("pull", false, "pull only")
	syncCmd.Flags().Bool("status", false, "show pending counts and last runs")
	syncCmd.MarkFlagsMutuallyExclusive("push", "pull", "status")
	syncWatchCmd.Flags().Duration("debounce", 2*time.Second, "quiet period before pushing")

	syncCmd.AddCommand(syncUsersCmd, syncWatchCmd)
	rootCmd.AddCommand(syncCmd)
}
