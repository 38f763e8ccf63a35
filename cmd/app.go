package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/streamzone/sz/internal/account"
	"github.com/streamzone/sz/internal/blob"
	"github.com/streamzone/sz/internal/cloud"
	"github.com/streamzone/sz/internal/config"
	"github.com/streamzone/sz/internal/db"
	"github.com/streamzone/sz/internal/input"
	"github.com/streamzone/sz/internal/models"
	szsync "github.com/streamzone/sz/internal/sync"
	"github.com/streamzone/sz/internal/workdir"
)

// openStore opens the local store. Without a configured data_dir the
// nearest ancestor of the working directory holding a store is used.
func openStore() (*db.DB, error) {
	dir, err := cfg.BaseDir()
	if err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		dir = workdir.Find(dir, storeExists)
	}
	return db.Open(dir)
}

func storeExists(dir string) bool {
	_, err := os.Stat(db.Path(dir))
	return err == nil
}

// openCloud opens the configured cloud backend
func openCloud(ctx context.Context) (cloud.Store, error) {
	return cloud.Open(ctx, cloud.Options{
		Backend:         cfg.Cloud.Backend,
		URL:             cfg.Cloud.URL,
		Project:         cfg.Cloud.Project,
		APIKey:          cfg.Cloud.APIKey,
		CredentialsFile: cfg.Cloud.CredentialsFile,
	})
}

// newCoordinator wires the local store to the cloud. Callers close
// c.Remote() when done.
func newCoordinator(ctx context.Context, store *db.DB) (*szsync.Coordinator, error) {
	remote, err := openCloud(ctx)
	if err != nil {
		return nil, fmt.Errorf("open cloud: %w", err)
	}
	return szsync.New(store, remote, szsync.Options{
		Concurrency:      cfg.Sync.Concurrency,
		CallTimeout:      cfg.SyncTimeout(),
		CrossProcessLock: cfg.CrossProcessLock(),
	}), nil
}

// optionalReconciler returns a coordinator for login fallbacks, or nil when
// the cloud is not reachable from config.
func optionalReconciler(ctx context.Context, store *db.DB) (account.Reconciler, func()) {
	c, err := newCoordinator(ctx, store)
	if err != nil {
		slog.Debug("cloud unavailable for login", "err", err)
		return nil, func() {}
	}
	return c, func() { c.Remote().Close() }
}

// openBlobs opens the configured image store
func openBlobs(ctx context.Context) (blob.Store, error) {
	return blob.Open(ctx, blob.Options{
		Driver:    blob.Driver(cfg.Blob.Driver),
		Dir:       cfg.Blob.Dir,
		Bucket:    cfg.Blob.S3Bucket,
		Region:    cfg.Blob.S3Region,
		Endpoint:  cfg.Blob.S3Endpoint,
		PathStyle: cfg.Blob.S3PathStyle,
	})
}

// currentUser resolves the session user in the local store
func currentUser(store *db.DB) (*models.User, error) {
	sess, err := config.LoadSession()
	if err != nil {
		return nil, err
	}
	u, err := store.GetUser(sess.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("session user is not in this store: %w", config.ErrNotLoggedIn)
	}
	return u, err
}

// requirePermission resolves the session user and checks one permission
func requirePermission(store *db.DB, name string) (*models.User, error) {
	u, err := currentUser(store)
	if err != nil {
		return nil, err
	}
	if err := account.RequirePermission(store, u.ID, name); err != nil {
		return nil, err
	}
	return u, nil
}

// parseID parses a positive row ID argument
func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

// parseMoney parses "12.5" or "$12.50" into cents
func parseMoney(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && !hasFrac {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q: at most two decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return w*100 + f, nil
}

// passwordFlag reads --password, expanding "-" and "@file"
func passwordFlag(cmd *cobra.Command) (string, error) {
	v, _ := cmd.Flags().GetString("password")
	return input.Line(v)
}

// descriptionFlag reads --description, expanding "-" and "@file"
func descriptionFlag(cmd *cobra.Command) (string, error) {
	v, _ := cmd.Flags().GetString("description")
	return input.Text(v)
}
