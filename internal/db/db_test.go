package db

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/streamzone/sz/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, email string) *models.User {
	t.Helper()
	u := &models.User{Name: "Test " + email, Email: email, PasswordHash: "hash"}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return u
}

func TestInitialize(t *testing.T) {
	dir := t.TempDir()
	db, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(Path(dir)); err != nil {
		t.Fatalf("database file not created: %v", err)
	}

	v, err := db.GetSchemaVersion()
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("schema version = %d, want %d", v, SchemaVersion)
	}

	roles, err := db.ListRoles()
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("seeded roles = %d, want 2", len(roles))
	}
	admin, err := db.GetRoleByName(models.RoleAdmin)
	if err != nil {
		t.Fatalf("GetRoleByName(admin): %v", err)
	}
	perms, err := db.PermissionsForRole(admin.ID)
	if err != nil {
		t.Fatalf("PermissionsForRole: %v", err)
	}
	if len(perms) != len(models.DefaultPermissions) {
		t.Errorf("admin permissions = %d, want %d", len(perms), len(models.DefaultPermissions))
	}
}

func TestInitializeTwiceKeepsSeeds(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		db, err := Initialize(dir)
		if err != nil {
			t.Fatalf("Initialize #%d: %v", i, err)
		}
		db.Close()
	}
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	rps, err := db.ListRolePermissions()
	if err != nil {
		t.Fatalf("ListRolePermissions: %v", err)
	}
	if len(rps) != len(models.DefaultPermissions) {
		t.Errorf("grants = %d, want %d", len(rps), len(models.DefaultPermissions))
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error opening missing store")
	}
}

func TestCreateAndGetUser(t *testing.T) {
	db := newTestDB(t)

	u := &models.User{Name: "Ana", Email: "  Ana@Example.com ", PasswordHash: "h", Phone: "555"}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("user ID not set")
	}
	if u.Sincronizado || u.FirebaseID != nil {
		t.Error("new user should start unsynced")
	}

	got, err := db.GetUserByEmail("ANA@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != u.ID || got.Email != "ana@example.com" || got.Phone != "555" {
		t.Errorf("got %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not stored")
	}

	dup := &models.User{Name: "Other", Email: "ana@example.com"}
	if err := db.CreateUser(dup); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email err = %v, want ErrEmailTaken", err)
	}

	if _, err := db.GetUser(9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user err = %v, want ErrNotFound", err)
	}
}

func TestUpdateProfileKeepsSyncFlag(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "a@x.com")
	if _, err := db.MarkSynced(models.KindUser, u.ID, "remote-1"); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if err := db.UpdateUserProfile(u.ID, "New Name", "123"); err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}
	got, _ := db.GetUser(u.ID)
	if !got.Sincronizado || got.RemoteID() != "remote-1" {
		t.Errorf("profile edit changed sync state: %+v", got.SyncMeta)
	}
	if got.Name != "New Name" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestLastLogin(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "a@x.com")
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := db.TouchLogin(u.ID, at); err != nil {
		t.Fatalf("TouchLogin: %v", err)
	}
	got, err := db.LastLogin(u.ID)
	if err != nil {
		t.Fatalf("LastLogin: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("last login = %v, want %v", got, at)
	}
}

func TestUserHasPermission(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "a@x.com")

	ok, err := db.UserHasPermission(u.ID, models.PermManageOffers)
	if err != nil {
		t.Fatalf("UserHasPermission: %v", err)
	}
	if ok {
		t.Fatal("user without roles should have no permissions")
	}

	admin, _ := db.GetRoleByName(models.RoleAdmin)
	if _, err := db.AssignRole(u.ID, admin.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if _, err := db.AssignRole(u.ID, admin.ID); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second AssignRole err = %v, want ErrDuplicate", err)
	}

	ok, _ = db.UserHasPermission(u.ID, models.PermManageOffers)
	if !ok {
		t.Error("admin should manage offers")
	}

	roles, _ := db.RolesForUser(u.ID)
	if len(roles) != 1 || roles[0].Name != models.RoleAdmin {
		t.Errorf("roles = %+v", roles)
	}

	if err := db.RemoveRole(u.ID, admin.ID); err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}
	ok, _ = db.UserHasPermission(u.ID, models.PermManageOffers)
	if ok {
		t.Error("permission should be gone after role removal")
	}
}

func TestGrantAndRevokePermission(t *testing.T) {
	db := newTestDB(t)
	role := &models.Role{Name: "soporte"}
	if err := db.CreateRole(role); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := db.CreateRole(&models.Role{Name: "soporte"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate role err = %v", err)
	}
	perm, _ := db.GetPermissionByName(models.PermViewAdmin)

	rp, err := db.GrantPermission(role.ID, perm.ID)
	if err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}
	if rp.Sincronizado {
		t.Error("new grant should be unsynced")
	}
	if err := db.RevokePermission(role.ID, perm.ID); err != nil {
		t.Fatalf("RevokePermission: %v", err)
	}
	if err := db.RevokePermission(role.ID, perm.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second revoke err = %v, want ErrNotFound", err)
	}
}

func TestCatalog(t *testing.T) {
	db := newTestDB(t)

	cat := &models.Category{Name: "Video"}
	if err := db.CreateCategory(cat); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	svc := &models.Service{Name: "Netflix", CategoryID: cat.ID, PriceCents: 1500, Active: true}
	if err := db.CreateService(svc); err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	hidden := &models.Service{Name: "Hidden", PriceCents: 100}
	if err := db.CreateService(hidden); err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	if err := db.CreateService(&models.Service{Name: "Bad", PriceCents: -1}); err == nil {
		t.Error("negative price should fail")
	}

	byCat, err := db.ListServices(cat.ID, false)
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	if len(byCat) != 1 || byCat[0].Name != "Netflix" {
		t.Errorf("services in category = %+v", byCat)
	}
	active, _ := db.ListServices(0, true)
	if len(active) != 1 {
		t.Errorf("active services = %d, want 1", len(active))
	}

	if err := db.SetServiceImage(svc.ID, "services/1.png"); err != nil {
		t.Fatalf("SetServiceImage: %v", err)
	}
	if err := db.SetServiceActive(svc.ID, false); err != nil {
		t.Fatalf("SetServiceActive: %v", err)
	}
	got, _ := db.GetService(svc.ID)
	if got.ImageKey != "services/1.png" || got.Active {
		t.Errorf("service = %+v", got)
	}

	now := time.Now().UTC()
	offer := &models.Offer{ServiceID: svc.ID, Title: "Promo", DiscountPercent: 20, PriceCents: 1200,
		StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour), Active: true}
	if err := db.CreateOffer(offer); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	expired := &models.Offer{ServiceID: svc.ID, Title: "Old", DiscountPercent: 10, PriceCents: 1350,
		EndsAt: now.Add(-time.Minute), Active: true}
	if err := db.CreateOffer(expired); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	live, err := db.ListLiveOffers(now)
	if err != nil {
		t.Fatalf("ListLiveOffers: %v", err)
	}
	if len(live) != 1 || live[0].ID != offer.ID {
		t.Errorf("live offers = %+v", live)
	}
	if err := db.DeactivateOffer(offer.ID); err != nil {
		t.Fatalf("DeactivateOffer: %v", err)
	}
	live, _ = db.ListLiveOffers(now)
	if len(live) != 0 {
		t.Errorf("live offers after deactivate = %d", len(live))
	}
}

func TestPurchasesAndNotifications(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "buyer@x.com")
	svc := &models.Service{Name: "Spotify", PriceCents: 500, Active: true}
	if err := db.CreateService(svc); err != nil {
		t.Fatalf("CreateService: %v", err)
	}

	p := &models.Purchase{UserID: u.ID, ServiceID: svc.ID, AmountCents: 500}
	if err := db.CreatePurchase(p); err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	if p.Status != models.PurchasePending {
		t.Errorf("status = %q", p.Status)
	}

	if err := db.TransitionPurchase(p.ID, models.PurchasePending, models.PurchaseApproved); err != nil {
		t.Fatalf("TransitionPurchase: %v", err)
	}
	if err := db.TransitionPurchase(p.ID, models.PurchasePending, models.PurchaseRejected); !errors.Is(err, ErrNotFound) {
		t.Errorf("transition from wrong status err = %v", err)
	}
	approved, _ := db.ListPurchases(models.PurchaseApproved)
	if len(approved) != 1 {
		t.Errorf("approved = %d", len(approved))
	}

	n := &models.Notification{UserID: u.ID, Title: "Hola", Message: "Compra aprobada"}
	if err := db.CreateNotification(n); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	unread, _ := db.ListNotifications(u.ID, true)
	if len(unread) != 1 {
		t.Fatalf("unread = %d", len(unread))
	}
	if err := db.MarkNotificationRead(u.ID, n.ID); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	if err := db.MarkNotificationRead(u.ID+1, n.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("marking another user's notification err = %v", err)
	}
	unread, _ = db.ListNotifications(u.ID, true)
	if len(unread) != 0 {
		t.Errorf("unread after mark = %d", len(unread))
	}
}
