package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/streamzone/sz/internal/cloud"
	"github.com/streamzone/sz/internal/db"
)

const (
	defaultConcurrency = 8
	defaultCallTimeout = 15 * time.Second
)

// Options tune a Coordinator. Zero values pick defaults.
type Options struct {
	// Concurrency bounds in-flight remote creates per kind
	Concurrency int
	// CallTimeout bounds each remote call
	CallTimeout time.Duration
	// CrossProcessLock also takes the store's sync file lock so that two
	// sz processes sharing a store never push at the same time
	CrossProcessLock bool
	// Now overrides the clock in tests
	Now func() time.Time
}

// Coordinator owns the push guard and moves rows between the local store
// and the cloud store.
type Coordinator struct {
	local  *db.DB
	remote cloud.Store
	opts   Options

	// syncing is the single "push in flight" flag. A push that finds it
	// set is dropped, not queued.
	syncing atomic.Bool
}

// New creates a coordinator
func New(local *db.DB, remote cloud.Store, opts Options) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{local: local, remote: remote, opts: opts}
}

// Remote returns the cloud store the coordinator writes to
func (c *Coordinator) Remote() cloud.Store {
	return c.remote
}

// IsSyncing reports whether a push is in flight in this process
func (c *Coordinator) IsSyncing() bool {
	return c.syncing.Load()
}

// begin takes the push guard. ok is false when a push is already running.
func (c *Coordinator) begin() (release func(), ok bool) {
	if !c.syncing.CompareAndSwap(false, true) {
		return nil, false
	}
	if !c.opts.CrossProcessLock {
		return func() { c.syncing.Store(false) }, true
	}

	unlock, err := c.local.TrySyncLock()
	if err != nil {
		if !errors.Is(err, db.ErrLockHeld) {
			slog.Warn("sync lock", "err", err)
		}
		c.syncing.Store(false)
		return nil, false
	}
	return func() {
		unlock()
		c.syncing.Store(false)
	}, true
}

func (c *Coordinator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}

// Status reports pending counts and the last recorded runs
func (c *Coordinator) Status() (Status, error) {
	pending, err := c.local.CountPending()
	if err != nil {
		return Status{}, fmt.Errorf("count pending: %w", err)
	}
	states, err := c.local.GetSyncStates()
	if err != nil {
		return Status{}, fmt.Errorf("sync state: %w", err)
	}
	return Status{Pending: pending, States: states, Syncing: c.IsSyncing()}, nil
}
