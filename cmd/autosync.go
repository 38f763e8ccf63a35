package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

// mutatingCommands lists commands outside "admin" that write rows the
// cloud should see. Every admin command except the list ones also counts.
var mutatingCommands = map[string]bool{
	"register":           true,
	"buy":                true,
	"cancel":             true,
	"notifications read": true,
}

// isMutatingCommand reports whether cmd should trigger auto-sync
func isMutatingCommand(cmd *cobra.Command) bool {
	path := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")
	if mutatingCommands[path] {
		return true
	}
	return strings.HasPrefix(path, "admin ") && cmd.Name() != "list"
}

// autoSyncAfterMutation runs a quick push after a mutating command
// completes. It runs synchronously with a short timeout; failures are
// logged at debug and the rows stay pending for the next run.
func autoSyncAfterMutation(ctx context.Context) {
	if cfg == nil || !cfg.AutoSync() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openStore()
	if err != nil {
		slog.Debug("autosync: open store", "err", err)
		return
	}
	defer store.Close()

	c, err := newCoordinator(ctx, store)
	if err != nil {
		slog.Debug("autosync: cloud", "err", err)
		return
	}
	defer c.Remote().Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.SyncTimeout())
	defer cancel()

	rep := c.PushAll(ctx)
	if rep.Skipped {
		slog.Debug("autosync: push already running")
		return
	}
	success, errs := rep.Totals()
	slog.Debug("autosync: push", "success", success, "errors", errs, "took", rep.Finished.Sub(rep.Started))
}
