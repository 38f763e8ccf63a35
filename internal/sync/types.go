// Package sync mirrors local rows into the cloud document store and caches
// selected cloud collections locally.
//
// Pushes are best effort: every unsynced row gets one create call, the
// rows that succeed are marked synced with the returned document ID, and
// failures are counted and left for the next run. Nothing is retried
// within a run and there is no conflict resolution.
package sync

import (
	"errors"
	"time"

	"github.com/streamzone/sz/internal/db"
	"github.com/streamzone/sz/internal/models"
)

var (
	// ErrParentNotSynced means a row references a row that has no remote ID yet
	ErrParentNotSynced = errors.New("referenced row not synced yet")
	// ErrSharedNotPulled means a seeded kind was not pushed because its cloud
	// collection could not be read first
	ErrSharedNotPulled = errors.New("cloud copy not pulled")
	// ErrUserNotFound means the cloud has no user with the requested email
	ErrUserNotFound = errors.New("user not found in cloud")
)

// Result is the outcome of pushing one kind
type Result struct {
	Kind    models.Kind
	Total   int
	Success int
	Errors  int
	// Skipped is set when another push was in flight and this call did nothing
	Skipped bool
	// LoadErr is set when the pending rows could not be read, or when a
	// seeded kind could not be pulled before pushing
	LoadErr error
}

// Complete reports whether every pending row was accounted for
func (r Result) Complete() bool {
	return r.Skipped || r.Success+r.Errors == r.Total
}

// Report is the outcome of pushing every kind in one guarded run
type Report struct {
	Results  []Result
	Skipped  bool
	Started  time.Time
	Finished time.Time
}

// Totals sums successes and errors across kinds
func (r Report) Totals() (success, errors int) {
	for _, res := range r.Results {
		success += res.Success
		errors += res.Errors
		if res.LoadErr != nil {
			errors++
		}
	}
	return success, errors
}

// CatalogPull is what a catalog pull cached locally
type CatalogPull struct {
	Categories []models.Category
	Services   []models.Service
	Offers     []models.Offer
}

// Status summarizes what is waiting to be pushed
type Status struct {
	Pending map[models.Kind]int64
	States  map[models.Kind]db.SyncState
	Syncing bool
}

// TotalPending sums pending rows across kinds
func (s Status) TotalPending() int64 {
	var n int64
	for _, v := range s.Pending {
		n += v
	}
	return n
}
