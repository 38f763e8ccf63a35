package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/streamzone/sz/internal/cloud"
	"github.com/streamzone/sz/internal/models"
)

// pendingRow is one unsynced row and the document it becomes. doc is
// evaluated at push time so parents synced earlier in the same run resolve.
type pendingRow struct {
	localID int64
	doc     func() (cloud.Document, error)
}

// ref returns the remote ID of a referenced row or ErrParentNotSynced
func (c *Coordinator) ref(kind models.Kind, localID int64) (string, error) {
	fid, err := c.local.FirebaseIDFor(kind, localID)
	if err != nil {
		return "", fmt.Errorf("%s %d: %w", kind, localID, err)
	}
	if fid == "" {
		return "", fmt.Errorf("%s %d: %w", kind, localID, ErrParentNotSynced)
	}
	return fid, nil
}

// optionalRef is ref for nullable references; zero maps to ""
func (c *Coordinator) optionalRef(kind models.Kind, localID int64) (string, error) {
	if localID == 0 {
		return "", nil
	}
	return c.ref(kind, localID)
}

func static(d cloud.Document) func() (cloud.Document, error) {
	return func() (cloud.Document, error) { return d, nil }
}

func (c *Coordinator) pendingRows(kind models.Kind) ([]pendingRow, error) {
	var rows []pendingRow
	switch kind {
	case models.KindUser:
		users, err := c.local.PendingUsers()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			rows = append(rows, pendingRow{u.ID, static(cloud.UserDocument(u))})
		}
	case models.KindRole:
		roles, err := c.local.PendingRoles()
		if err != nil {
			return nil, err
		}
		for _, r := range roles {
			rows = append(rows, pendingRow{r.ID, static(cloud.NamedDocument(r.Name, r.Description))})
		}
	case models.KindPermission:
		perms, err := c.local.PendingPermissions()
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			rows = append(rows, pendingRow{p.ID, static(cloud.NamedDocument(p.Name, p.Description))})
		}
	case models.KindCategory:
		cats, err := c.local.PendingCategories()
		if err != nil {
			return nil, err
		}
		for _, ct := range cats {
			rows = append(rows, pendingRow{ct.ID, static(cloud.NamedDocument(ct.Name, ct.Description))})
		}
	case models.KindService:
		svcs, err := c.local.PendingServices()
		if err != nil {
			return nil, err
		}
		for _, s := range svcs {
			rows = append(rows, pendingRow{s.ID, func() (cloud.Document, error) {
				cat, err := c.optionalRef(models.KindCategory, s.CategoryID)
				if err != nil {
					return nil, err
				}
				return cloud.ServiceDocument(s, cat), nil
			}})
		}
	case models.KindUserRole:
		links, err := c.local.PendingUserRoles()
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			rows = append(rows, pendingRow{l.ID, func() (cloud.Document, error) {
				user, err := c.ref(models.KindUser, l.UserID)
				if err != nil {
					return nil, err
				}
				role, err := c.ref(models.KindRole, l.RoleID)
				if err != nil {
					return nil, err
				}
				return cloud.UserRoleDocument(user, role), nil
			}})
		}
	case models.KindRolePermission:
		links, err := c.local.PendingRolePermissions()
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			rows = append(rows, pendingRow{l.ID, func() (cloud.Document, error) {
				role, err := c.ref(models.KindRole, l.RoleID)
				if err != nil {
					return nil, err
				}
				perm, err := c.ref(models.KindPermission, l.PermissionID)
				if err != nil {
					return nil, err
				}
				return cloud.RolePermissionDocument(role, perm), nil
			}})
		}
	case models.KindOffer:
		offers, err := c.local.PendingOffers()
		if err != nil {
			return nil, err
		}
		for _, o := range offers {
			rows = append(rows, pendingRow{o.ID, func() (cloud.Document, error) {
				svc, err := c.ref(models.KindService, o.ServiceID)
				if err != nil {
					return nil, err
				}
				return cloud.OfferDocument(o, svc), nil
			}})
		}
	case models.KindPurchase:
		purchases, err := c.local.PendingPurchases()
		if err != nil {
			return nil, err
		}
		for _, p := range purchases {
			rows = append(rows, pendingRow{p.ID, func() (cloud.Document, error) {
				user, err := c.ref(models.KindUser, p.UserID)
				if err != nil {
					return nil, err
				}
				svc, err := c.ref(models.KindService, p.ServiceID)
				if err != nil {
					return nil, err
				}
				var offer string
				if p.OfferID != nil {
					if offer, err = c.ref(models.KindOffer, *p.OfferID); err != nil {
						return nil, err
					}
				}
				return cloud.PurchaseDocument(p, user, svc, offer), nil
			}})
		}
	case models.KindNotification:
		notes, err := c.local.PendingNotifications()
		if err != nil {
			return nil, err
		}
		for _, n := range notes {
			rows = append(rows, pendingRow{n.ID, func() (cloud.Document, error) {
				user, err := c.ref(models.KindUser, n.UserID)
				if err != nil {
					return nil, err
				}
				return cloud.NotificationDocument(n, user), nil
			}})
		}
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return rows, nil
}

// pushKind pushes every pending row of one kind. The caller holds the guard.
//
// Each row is an independent create running on its own goroutine. The run
// is over once successes plus errors reach the number of pending rows.
func (c *Coordinator) pushKind(ctx context.Context, kind models.Kind) Result {
	res := Result{Kind: kind}
	if err := c.adoptShared(ctx, kind); err != nil {
		slog.Warn("pull before push", "kind", kind, "err", err)
		res.LoadErr = fmt.Errorf("%w: %v", ErrSharedNotPulled, err)
		return res
	}
	rows, err := c.pendingRows(kind)
	if err != nil {
		slog.Warn("load pending rows", "kind", kind, "err", err)
		res.LoadErr = err
		return res
	}
	res.Total = len(rows)
	if res.Total == 0 {
		return res
	}

	collection := cloud.CollectionFor(kind)
	var success, failed, completed atomic.Int64
	done := make(chan struct{})
	account := func(ok bool) {
		if ok {
			success.Add(1)
		} else {
			failed.Add(1)
		}
		if completed.Add(1) == int64(res.Total) {
			close(done)
		}
	}

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for _, row := range rows {
		g.Go(func() error {
			account(c.pushRow(ctx, kind, collection, row))
			return nil
		})
	}
	<-done
	g.Wait()

	res.Success = int(success.Load())
	res.Errors = int(failed.Load())
	if err := c.local.RecordPush(kind, res.Success, res.Errors, c.opts.Now()); err != nil {
		slog.Debug("record push", "kind", kind, "err", err)
	}
	slog.Info("push finished", "kind", kind, "total", res.Total, "success", res.Success, "errors", res.Errors)
	return res
}

// pushRow creates one remote document and records its ID locally
func (c *Coordinator) pushRow(ctx context.Context, kind models.Kind, collection string, row pendingRow) bool {
	doc, err := row.doc()
	if err != nil {
		slog.Warn("push row skipped", "kind", kind, "id", row.localID, "err", err)
		return false
	}

	callCtx, cancel := c.callCtx(ctx)
	fid, err := c.remote.Add(callCtx, collection, doc)
	cancel()
	if err != nil {
		slog.Warn("push row failed", "kind", kind, "id", row.localID, "err", err)
		return false
	}

	// A failure here leaves a remote document the next run will duplicate.
	if _, err := c.local.MarkSynced(kind, row.localID, fid); err != nil {
		slog.Error("mark synced", "kind", kind, "id", row.localID, "firebase_id", fid, "err", err)
		return false
	}
	slog.Debug("pushed row", "kind", kind, "id", row.localID, "firebase_id", fid)
	return true
}

// PushPendingUsers pushes every unsynced user. A call made while another
// push is in flight returns at once with Skipped set.
func (c *Coordinator) PushPendingUsers(ctx context.Context) Result {
	return c.PushPending(ctx, models.KindUser)
}

// PushPending pushes every unsynced row of one kind under the guard
func (c *Coordinator) PushPending(ctx context.Context, kind models.Kind) Result {
	release, ok := c.begin()
	if !ok {
		slog.Debug("push already in progress", "kind", kind)
		return Result{Kind: kind, Skipped: true}
	}
	defer release()
	return c.pushKind(ctx, kind)
}

// PushAll pushes every kind in dependency order under one guard
func (c *Coordinator) PushAll(ctx context.Context) Report {
	rep := Report{Started: c.opts.Now()}
	release, ok := c.begin()
	if !ok {
		slog.Debug("push already in progress")
		rep.Skipped = true
		rep.Finished = rep.Started
		return rep
	}
	defer release()
	c.pushKinds(ctx, &rep)
	return rep
}

func (c *Coordinator) pushKinds(ctx context.Context, rep *Report) {
	for _, kind := range models.AllKinds {
		if ctx.Err() != nil {
			break
		}
		rep.Results = append(rep.Results, c.pushKind(ctx, kind))
	}
	rep.Finished = c.opts.Now()
}

// PushPendingUsersAsync starts a user push in the background and calls done
// with its result. When a push is already in flight, done runs immediately
// on the caller's goroutine with Skipped set and nothing is written.
func (c *Coordinator) PushPendingUsersAsync(ctx context.Context, done func(Result)) {
	release, ok := c.begin()
	if !ok {
		if done != nil {
			done(Result{Kind: models.KindUser, Skipped: true})
		}
		return
	}
	go func() {
		res := c.pushKind(ctx, models.KindUser)
		release()
		if done != nil {
			done(res)
		}
	}()
}

// PushAllAsync is PushAll in the background with the same drop semantics
func (c *Coordinator) PushAllAsync(ctx context.Context, done func(Report)) {
	release, ok := c.begin()
	if !ok {
		if done != nil {
			now := c.opts.Now()
			done(Report{Skipped: true, Started: now, Finished: now})
		}
		return
	}
	go func() {
		rep := Report{Started: c.opts.Now()}
		c.pushKinds(ctx, &rep)
		release()
		if done != nil {
			done(rep)
		}
	}()
}
