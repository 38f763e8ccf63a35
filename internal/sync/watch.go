package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/streamzone/sz/internal/cloud"
	"github.com/streamzone/sz/internal/db"
)

// WatchOptions configure Watch
type WatchOptions struct {
	// Debounce collapses bursts of local writes into one push
	Debounce time.Duration
	// OnPush, when set, receives every push report
	OnPush func(Report)
	// OnPull, when set, is called after a listener-triggered pull
	OnPull func(collection string, n int)
}

// Watch pushes pending rows whenever the local store changes and, when the
// cloud store can stream changes, re-pulls permissions and role links as
// they change remotely. It runs until ctx is done.
func (c *Coordinator) Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := db.Dir(c.local.BaseDir())
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	remote := c.listen(ctx)

	push := func() {
		rep := c.PushAll(ctx)
		if opts.OnPush != nil {
			opts.OnPush(rep)
		}
	}
	push()

	timer := time.NewTimer(opts.Debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if isStoreWrite(ev) {
				timer.Reset(opts.Debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "err", err)
		case <-timer.C:
			push()
		case coll := <-remote:
			n := c.pullCollection(ctx, coll)
			if opts.OnPull != nil {
				opts.OnPull(coll, n)
			}
		}
	}
}

// isStoreWrite filters out lock files so the coordinator's own lock churn
// does not retrigger pushes.
func isStoreWrite(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), "streamzone.db")
}

// listen subscribes to remote changes of the cached collections and
// returns a channel of collection names to re-pull. A nil channel blocks
// forever, which is what the select loop wants when the store cannot watch.
func (c *Coordinator) listen(ctx context.Context) <-chan string {
	watcher, ok := c.remote.(cloud.Watcher)
	if !ok {
		return nil
	}
	out := make(chan string, 4)
	for _, coll := range []string{cloud.CollPermissions, cloud.CollRolePermissions} {
		changes, err := watcher.Watch(ctx, coll)
		if err != nil {
			slog.Warn("listen", "collection", coll, "err", err)
			continue
		}
		go func() {
			for range changes {
				select {
				case out <- coll:
				default:
					// a pull for this collection is already queued
				}
			}
		}()
	}
	return out
}

func (c *Coordinator) pullCollection(ctx context.Context, coll string) int {
	switch coll {
	case cloud.CollPermissions:
		return len(c.PullPermissions(ctx))
	case cloud.CollRolePermissions:
		return len(c.PullRolePermissions(ctx))
	}
	return 0
}
