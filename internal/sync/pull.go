package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/streamzone/sz/internal/cloud"
	"github.com/streamzone/sz/internal/db"
	"github.com/streamzone/sz/internal/models"
)

// Pulls fetch a whole collection and cache it locally as synced rows. They
// never fail: a fetch error is logged and yields an empty result, and a
// document that cannot be cached is logged and left out.

func (c *Coordinator) fetch(ctx context.Context, collection string) ([]cloud.Snapshot, error) {
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.remote.List(callCtx, collection)
}

func (c *Coordinator) recordPull(kind models.Kind, n int) {
	if err := c.local.RecordPull(kind, n, c.opts.Now()); err != nil {
		slog.Debug("record pull", "kind", kind, "err", err)
	}
}

// PullPermissions caches the permissions collection and returns what was cached
func (c *Coordinator) PullPermissions(ctx context.Context) []models.Permission {
	out, err := c.pullPermissions(ctx)
	if err != nil {
		slog.Warn("pull permissions", "err", err)
	}
	return out
}

func (c *Coordinator) pullPermissions(ctx context.Context) ([]models.Permission, error) {
	out := []models.Permission{}
	snaps, err := c.fetch(ctx, cloud.CollPermissions)
	if err != nil {
		return out, err
	}
	for _, s := range snaps {
		p := cloud.PermissionFromSnapshot(s)
		if p.Name == "" {
			slog.Debug("skip permission without name", "firebase_id", s.ID)
			continue
		}
		if err := c.local.UpsertPulledPermission(&p); err != nil {
			slog.Warn("cache permission", "firebase_id", s.ID, "err", err)
			continue
		}
		out = append(out, p)
	}
	c.recordPull(models.KindPermission, len(out))
	return out, nil
}

// PullRoles caches the roles collection
func (c *Coordinator) PullRoles(ctx context.Context) []models.Role {
	out, err := c.pullRoles(ctx)
	if err != nil {
		slog.Warn("pull roles", "err", err)
	}
	return out
}

func (c *Coordinator) pullRoles(ctx context.Context) ([]models.Role, error) {
	out := []models.Role{}
	snaps, err := c.fetch(ctx, cloud.CollRoles)
	if err != nil {
		return out, err
	}
	for _, s := range snaps {
		r := cloud.RoleFromSnapshot(s)
		if r.Name == "" {
			continue
		}
		if err := c.local.UpsertPulledRole(&r); err != nil {
			slog.Warn("cache role", "firebase_id", s.ID, "err", err)
			continue
		}
		out = append(out, r)
	}
	c.recordPull(models.KindRole, len(out))
	return out, nil
}

// PullRolePermissions caches the role_permissions collection. Roles or
// permissions a link references but that are not cached yet are fetched
// one by one.
func (c *Coordinator) PullRolePermissions(ctx context.Context) []models.RolePermission {
	out, err := c.pullRolePermissions(ctx)
	if err != nil {
		slog.Warn("pull role permissions", "err", err)
	}
	return out
}

func (c *Coordinator) pullRolePermissions(ctx context.Context) ([]models.RolePermission, error) {
	out := []models.RolePermission{}
	snaps, err := c.fetch(ctx, cloud.CollRolePermissions)
	if err != nil {
		return out, err
	}
	for _, s := range snaps {
		roleFID, permFID := cloud.RolePermissionRefs(s)
		if roleFID == "" || permFID == "" {
			slog.Debug("skip role permission with missing reference", "firebase_id", s.ID)
			continue
		}
		if _, err := c.ensureRole(ctx, roleFID); err != nil {
			slog.Warn("cache role permission", "firebase_id", s.ID, "err", err)
			continue
		}
		if _, err := c.ensurePermission(ctx, permFID); err != nil {
			slog.Warn("cache role permission", "firebase_id", s.ID, "err", err)
			continue
		}
		rp, err := c.local.UpsertPulledRolePermission(s.ID, roleFID, permFID)
		if err != nil {
			slog.Warn("cache role permission", "firebase_id", s.ID, "err", err)
			continue
		}
		out = append(out, *rp)
	}
	c.recordPull(models.KindRolePermission, len(out))
	return out, nil
}

// adoptShared pulls the collection of a kind every store seeds locally, so
// that seeded rows adopt the cloud documents instead of being pushed again.
// Other kinds need nothing.
func (c *Coordinator) adoptShared(ctx context.Context, kind models.Kind) error {
	var err error
	switch kind {
	case models.KindRole:
		_, err = c.pullRoles(ctx)
	case models.KindPermission:
		_, err = c.pullPermissions(ctx)
	case models.KindRolePermission:
		_, err = c.pullRolePermissions(ctx)
	}
	return err
}

// PullCatalog caches categories, services and offers in that order
func (c *Coordinator) PullCatalog(ctx context.Context) CatalogPull {
	out := CatalogPull{Categories: []models.Category{}, Services: []models.Service{}, Offers: []models.Offer{}}

	if snaps, err := c.fetch(ctx, cloud.CollCategories); err != nil {
		slog.Warn("pull categories", "err", err)
	} else {
		for _, s := range snaps {
			cat := cloud.CategoryFromSnapshot(s)
			if cat.Name == "" {
				continue
			}
			if err := c.local.UpsertPulledCategory(&cat); err != nil {
				slog.Warn("cache category", "firebase_id", s.ID, "err", err)
				continue
			}
			out.Categories = append(out.Categories, cat)
		}
		c.recordPull(models.KindCategory, len(out.Categories))
	}

	if snaps, err := c.fetch(ctx, cloud.CollServices); err != nil {
		slog.Warn("pull services", "err", err)
	} else {
		for _, s := range snaps {
			svc, catFID := cloud.ServiceFromSnapshot(s)
			if svc.Name == "" {
				continue
			}
			if err := c.local.UpsertPulledService(&svc, catFID); err != nil {
				slog.Warn("cache service", "firebase_id", s.ID, "err", err)
				continue
			}
			out.Services = append(out.Services, svc)
		}
		c.recordPull(models.KindService, len(out.Services))
	}

	if snaps, err := c.fetch(ctx, cloud.CollOffers); err != nil {
		slog.Warn("pull offers", "err", err)
	} else {
		for _, s := range snaps {
			o, svcFID := cloud.OfferFromSnapshot(s)
			if err := c.local.UpsertPulledOffer(&o, svcFID); err != nil {
				slog.Warn("cache offer", "firebase_id", s.ID, "err", err)
				continue
			}
			out.Offers = append(out.Offers, o)
		}
		c.recordPull(models.KindOffer, len(out.Offers))
	}
	return out
}

// ensureRole returns the local ID of a remote role, fetching it when needed
func (c *Coordinator) ensureRole(ctx context.Context, fid string) (int64, error) {
	id, err := c.local.LocalIDForFirebase(models.KindRole, fid)
	if !errors.Is(err, db.ErrNotFound) {
		return id, err
	}
	callCtx, cancel := c.callCtx(ctx)
	snap, err := c.remote.Get(callCtx, cloud.CollRoles, fid)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("fetch role %s: %w", fid, err)
	}
	r := cloud.RoleFromSnapshot(*snap)
	if r.Name == "" {
		return 0, fmt.Errorf("role %s has no name", fid)
	}
	if err := c.local.UpsertPulledRole(&r); err != nil {
		return 0, err
	}
	return r.ID, nil
}

// ensurePermission returns the local ID of a remote permission, fetching it when needed
func (c *Coordinator) ensurePermission(ctx context.Context, fid string) (int64, error) {
	id, err := c.local.LocalIDForFirebase(models.KindPermission, fid)
	if !errors.Is(err, db.ErrNotFound) {
		return id, err
	}
	callCtx, cancel := c.callCtx(ctx)
	snap, err := c.remote.Get(callCtx, cloud.CollPermissions, fid)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("fetch permission %s: %w", fid, err)
	}
	p := cloud.PermissionFromSnapshot(*snap)
	if p.Name == "" {
		return 0, fmt.Errorf("permission %s has no name", fid)
	}
	if err := c.local.UpsertPulledPermission(&p); err != nil {
		return 0, err
	}
	return p.ID, nil
}

// ReconcileUserAtLogin reads one user's cloud record and role memberships
// and caches them locally. It never writes to the cloud. Role links that
// cannot be cached are logged and skipped; only a failed user lookup is an
// error.
func (c *Coordinator) ReconcileUserAtLogin(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	callCtx, cancel := c.callCtx(ctx)
	snaps, err := c.remote.Where(callCtx, cloud.CollUsers, cloud.FieldEmail, email)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if len(snaps) == 0 {
		return nil, ErrUserNotFound
	}
	if len(snaps) > 1 {
		slog.Warn("several cloud users share an email, using the first", "email", email, "count", len(snaps))
	}

	snap := snaps[0]
	u := cloud.UserFromSnapshot(snap)
	if u.Email == "" {
		u.Email = email
	}
	if err := c.local.UpsertPulledUser(&u); err != nil {
		return nil, fmt.Errorf("cache user: %w", err)
	}

	callCtx, cancel = c.callCtx(ctx)
	links, err := c.remote.Where(callCtx, cloud.CollUserRoles, cloud.FieldUserID, snap.ID)
	cancel()
	if err != nil {
		slog.Warn("fetch user roles", "user", snap.ID, "err", err)
		return &u, nil
	}
	for _, l := range links {
		_, roleFID := cloud.UserRoleRefs(l)
		if roleFID == "" {
			continue
		}
		roleID, err := c.ensureRole(ctx, roleFID)
		if err != nil {
			slog.Warn("cache user role", "firebase_id", l.ID, "err", err)
			continue
		}
		if _, err := c.local.UpsertPulledUserRole(l.ID, u.ID, roleID); err != nil {
			slog.Warn("cache user role", "firebase_id", l.ID, "err", err)
		}
	}
	return &u, nil
}
