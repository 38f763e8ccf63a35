package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streamzone/sz/internal/cloud"
	"github.com/streamzone/sz/internal/models"
)

func seedRemote(t *testing.T, mem *cloud.Memory, coll, id string, doc cloud.Document) {
	t.Helper()
	if err := mem.Set(context.Background(), coll, id, doc); err != nil {
		t.Fatalf("seed %s/%s: %v", coll, id, err)
	}
}

func TestPullEmptyOnFailure(t *testing.T) {
	tests := []struct {
		name string
		pull func(*Coordinator) (n int, nonNil bool)
	}{
		{"permissions", func(c *Coordinator) (int, bool) {
			got := c.PullPermissions(context.Background())
			return len(got), got != nil
		}},
		{"roles", func(c *Coordinator) (int, bool) {
			got := c.PullRoles(context.Background())
			return len(got), got != nil
		}},
		{"role permissions", func(c *Coordinator) (int, bool) {
			got := c.PullRolePermissions(context.Background())
			return len(got), got != nil
		}},
		{"catalog", func(c *Coordinator) (int, bool) {
			got := c.PullCatalog(context.Background())
			n := len(got.Categories) + len(got.Services) + len(got.Offers)
			return n, got.Categories != nil && got.Services != nil && got.Offers != nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, mem, c := newTestEnv(t)
			seedRemote(t, mem, cloud.CollRoles, "r1", cloud.Document{cloud.FieldName: "soporte"})
			seedRemote(t, mem, cloud.CollPermissions, "p1", cloud.Document{cloud.FieldName: "tickets"})
			seedRemote(t, mem, cloud.CollRolePermissions, "rp1", cloud.Document{cloud.FieldRoleID: "r1", cloud.FieldPermissionID: "p1"})
			seedRemote(t, mem, cloud.CollCategories, "c1", cloud.Document{cloud.FieldName: "Video"})
			mem.BeforeRead = func(string) error { return errors.New("network down") }

			n, nonNil := tt.pull(c)
			if n != 0 || !nonNil {
				t.Errorf("failed pull = %d rows, non-nil %v; want empty non-nil", n, nonNil)
			}
			if _, err := local.GetRoleByName("soporte"); err == nil {
				t.Error("failed pull cached a role")
			}
			states, _ := local.GetSyncStates()
			for kind, st := range states {
				if !st.LastPullAt.IsZero() {
					t.Errorf("%s pull recorded after a failed fetch", kind)
				}
			}
		})
	}
}

func TestPullCatalogPartialFailure(t *testing.T) {
	local, mem, c := newTestEnv(t)
	seedRemote(t, mem, cloud.CollCategories, "c1", cloud.Document{cloud.FieldName: "Video"})
	seedRemote(t, mem, cloud.CollServices, "s1", cloud.Document{cloud.FieldName: "Disney+", cloud.FieldCategoryID: "c1", cloud.FieldPrice: 8.99})
	seedRemote(t, mem, cloud.CollOffers, "o1", cloud.Document{cloud.FieldServiceID: "s1", cloud.FieldTitle: "Promo"})
	mem.BeforeRead = func(coll string) error {
		if coll == cloud.CollServices {
			return cloud.ErrUnavailable
		}
		return nil
	}

	got := c.PullCatalog(context.Background())
	if len(got.Categories) != 1 || len(got.Services) != 0 || len(got.Offers) != 0 {
		t.Fatalf("catalog = %+v, want the category only", got)
	}
	if got.Services == nil || got.Offers == nil {
		t.Error("failed collections should come back as empty slices")
	}
	if _, err := local.LocalIDForFirebase(models.KindCategory, "c1"); err != nil {
		t.Errorf("category not cached: %v", err)
	}
	// the offer cannot resolve its service without the services pull
	if _, err := local.LocalIDForFirebase(models.KindOffer, "o1"); err == nil {
		t.Error("orphan offer was cached")
	}
}

func TestPullRolesSkipsNameConflict(t *testing.T) {
	local, mem, c := newTestEnv(t)
	seedRemote(t, mem, cloud.CollRoles, "r1", cloud.Document{cloud.FieldName: "soporte"})
	if got := c.PullRoles(context.Background()); len(got) != 1 {
		t.Fatalf("first pull = %+v", got)
	}

	seedRemote(t, mem, cloud.CollRoles, "r2", cloud.Document{cloud.FieldName: "soporte"})
	got := c.PullRoles(context.Background())
	if len(got) != 1 || got[0].RemoteID() != "r1" {
		t.Errorf("pull with conflicting document = %+v, want r1 only", got)
	}
	role, err := local.GetRoleByName("soporte")
	if err != nil || role.RemoteID() != "r1" {
		t.Errorf("cached role = %+v, %v", role, err)
	}
	if _, err := local.LocalIDForFirebase(models.KindRole, "r2"); err == nil {
		t.Error("conflicting document was cached")
	}
}

func TestPullPermissionsEmptyCollection(t *testing.T) {
	_, _, c := newTestEnv(t)
	if got := c.PullPermissions(context.Background()); got == nil || len(got) != 0 {
		t.Errorf("empty collection pull = %#v", got)
	}
}

func TestPullPermissionsCachesLocally(t *testing.T) {
	local, mem, c := newTestEnv(t)
	seedRemote(t, mem, cloud.CollPermissions, "p1", cloud.Document{cloud.FieldName: "export_reports", cloud.FieldDescription: "x"})
	seedRemote(t, mem, cloud.CollPermissions, "p2", cloud.Document{cloud.FieldName: models.PermViewAdmin})
	seedRemote(t, mem, cloud.CollPermissions, "junk", cloud.Document{cloud.FieldName: 42})

	got := c.PullPermissions(context.Background())
	if len(got) != 2 {
		t.Fatalf("pulled = %d, want 2 (nameless document skipped)", len(got))
	}
	for _, p := range got {
		if !p.Valid() || !p.Sincronizado {
			t.Errorf("pulled permission not synced: %+v", p)
		}
	}

	p, err := local.GetPermissionByName("export_reports")
	if err != nil || p.RemoteID() != "p1" {
		t.Errorf("cached permission = %+v, %v", p, err)
	}
	// the seeded local row was adopted, not duplicated
	all, _ := local.ListPermissions()
	if len(all) != len(models.DefaultPermissions)+1 {
		t.Errorf("local permissions = %d", len(all))
	}
	if mem.Adds() != 0 {
		t.Error("pull must not write to the cloud")
	}
}

func TestPullRolePermissionsFetchesMissingEnds(t *testing.T) {
	local, mem, c := newTestEnv(t)
	seedRemote(t, mem, cloud.CollRoles, "r1", cloud.Document{cloud.FieldName: "soporte"})
	seedRemote(t, mem, cloud.CollPermissions, "p1", cloud.Document{cloud.FieldName: "tickets"})
	seedRemote(t, mem, cloud.CollRolePermissions, "rp1", cloud.Document{cloud.FieldRoleID: "r1", cloud.FieldPermissionID: "p1"})
	seedRemote(t, mem, cloud.CollRolePermissions, "rp2", cloud.Document{cloud.FieldRoleID: "gone", cloud.FieldPermissionID: "p1"})
	seedRemote(t, mem, cloud.CollRolePermissions, "rp3", cloud.Document{cloud.FieldRoleID: "r1"})

	got := c.PullRolePermissions(context.Background())
	if len(got) != 1 {
		t.Fatalf("pulled = %d, want 1", len(got))
	}

	role, err := local.GetRoleByName("soporte")
	if err != nil {
		t.Fatalf("role not cached: %v", err)
	}
	perms, _ := local.PermissionsForRole(role.ID)
	if len(perms) != 1 || perms[0].Name != "tickets" {
		t.Errorf("role permissions = %+v", perms)
	}

	states, _ := local.GetSyncStates()
	if states[models.KindRolePermission].LastPullCount != 1 {
		t.Errorf("pull state = %+v", states[models.KindRolePermission])
	}
}

func TestPullCatalog(t *testing.T) {
	local, mem, c := newTestEnv(t)
	seedRemote(t, mem, cloud.CollCategories, "c1", cloud.Document{cloud.FieldName: "Video"})
	seedRemote(t, mem, cloud.CollServices, "s1", cloud.Document{
		cloud.FieldName: "Disney+", cloud.FieldCategoryID: "c1", cloud.FieldPrice: 8.99, cloud.FieldActive: true,
	})
	seedRemote(t, mem, cloud.CollOffers, "o1", cloud.Document{
		cloud.FieldServiceID: "s1", cloud.FieldTitle: "Promo", cloud.FieldDiscount: 10.0,
		cloud.FieldOfferPrice: 8.09, cloud.FieldOfferActive: true,
		cloud.FieldEndsAt: time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	seedRemote(t, mem, cloud.CollOffers, "o2", cloud.Document{cloud.FieldServiceID: "missing"})

	got := c.PullCatalog(context.Background())
	if len(got.Categories) != 1 || len(got.Services) != 1 || len(got.Offers) != 1 {
		t.Fatalf("catalog = %+v", got)
	}

	svcs, _ := local.ListServices(got.Categories[0].ID, true)
	if len(svcs) != 1 || svcs[0].PriceCents != 899 {
		t.Errorf("services = %+v", svcs)
	}
	live, _ := local.ListLiveOffers(time.Now())
	if len(live) != 1 || live[0].DiscountPercent != 10 || live[0].PriceCents != 809 {
		t.Errorf("offers = %+v", live)
	}
}

func TestReconcileUserAtLogin(t *testing.T) {
	local, mem, c := newTestEnv(t)
	seedRemote(t, mem, cloud.CollUsers, "u1", cloud.Document{
		cloud.FieldName: "Ana", cloud.FieldEmail: "ana@x.com", cloud.FieldPassword: "$2a$10$hash",
	})
	seedRemote(t, mem, cloud.CollRoles, "r-admin", cloud.Document{cloud.FieldName: models.RoleAdmin})
	seedRemote(t, mem, cloud.CollUserRoles, "ur1", cloud.Document{cloud.FieldUserID: "u1", cloud.FieldRoleID: "r-admin"})
	seedRemote(t, mem, cloud.CollUserRoles, "ur2", cloud.Document{cloud.FieldUserID: "u1", cloud.FieldRoleID: "r-gone"})

	u, err := c.ReconcileUserAtLogin(context.Background(), " ANA@x.com ")
	if err != nil {
		t.Fatalf("ReconcileUserAtLogin: %v", err)
	}
	if u.ID == 0 || u.RemoteID() != "u1" || u.PasswordHash != "$2a$10$hash" {
		t.Errorf("user = %+v", u)
	}

	roles, _ := local.RolesForUser(u.ID)
	if len(roles) != 1 || roles[0].Name != models.RoleAdmin {
		t.Errorf("roles = %+v", roles)
	}
	// the seeded admin role was adopted by the remote role
	admin, _ := local.GetRoleByName(models.RoleAdmin)
	if admin.RemoteID() != "r-admin" {
		t.Errorf("admin role remote id = %q", admin.RemoteID())
	}
	if ok, _ := local.UserHasPermission(u.ID, models.PermManagePurchases); !ok {
		t.Error("reconciled admin should hold admin permissions")
	}
	if mem.Adds() != 0 {
		t.Error("reconciliation must be read-only")
	}
}

func TestReconcileUserNotFound(t *testing.T) {
	_, mem, c := newTestEnv(t)
	if _, err := c.ReconcileUserAtLogin(context.Background(), "nobody@x.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}

	mem.BeforeRead = func(string) error { return cloud.ErrUnavailable }
	if _, err := c.ReconcileUserAtLogin(context.Background(), "a@x.com"); !errors.Is(err, cloud.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
