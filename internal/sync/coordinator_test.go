package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/streamzone/sz/internal/cloud"
	"github.com/streamzone/sz/internal/db"
	"github.com/streamzone/sz/internal/models"
)

func newTestEnv(t *testing.T) (*db.DB, *cloud.Memory, *Coordinator) {
	t.Helper()
	local, err := db.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { local.Close() })
	mem := cloud.NewMemory()
	return local, mem, New(local, mem, Options{Concurrency: 4, CallTimeout: 5 * time.Second})
}

func addUsers(t *testing.T, local *db.DB, n int) []*models.User {
	t.Helper()
	var users []*models.User
	for i := 0; i < n; i++ {
		u := &models.User{Name: fmt.Sprintf("User %d", i), Email: fmt.Sprintf("u%d@x.com", i), PasswordHash: "h"}
		if err := local.CreateUser(u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		users = append(users, u)
	}
	return users
}

func assertAllUsersSynced(t *testing.T, local *db.DB) {
	t.Helper()
	users, err := local.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	for _, u := range users {
		if !u.Sincronizado || u.FirebaseID == nil || *u.FirebaseID == "" {
			t.Errorf("user %d not synced: %+v", u.ID, u.SyncMeta)
		}
	}
}

func TestPushPendingUsers(t *testing.T) {
	local, mem, c := newTestEnv(t)
	addUsers(t, local, 5)

	res := c.PushPendingUsers(context.Background())
	if res.Skipped || res.Total != 5 || res.Success != 5 || res.Errors != 0 {
		t.Fatalf("result = %+v", res)
	}
	if !res.Complete() {
		t.Error("result should be complete")
	}
	assertAllUsersSynced(t, local)

	if mem.Len(cloud.CollUsers) != 5 {
		t.Errorf("remote users = %d, want 5", mem.Len(cloud.CollUsers))
	}

	// every local firebase id names a real remote document with the user's email
	users, _ := local.ListUsers()
	for _, u := range users {
		snap, err := mem.Get(context.Background(), cloud.CollUsers, u.RemoteID())
		if err != nil {
			t.Fatalf("remote doc for user %d: %v", u.ID, err)
		}
		if snap.Data.String(cloud.FieldEmail) != u.Email {
			t.Errorf("remote email = %q, want %q", snap.Data.String(cloud.FieldEmail), u.Email)
		}
	}

	// nothing left to push
	again := c.PushPendingUsers(context.Background())
	if again.Total != 0 || mem.Adds() != 5 {
		t.Errorf("second push = %+v, adds = %d", again, mem.Adds())
	}
}

func TestPushHighConcurrencyMarksEveryRow(t *testing.T) {
	local, mem, _ := newTestEnv(t)
	c := New(local, mem, Options{Concurrency: 64, CallTimeout: 5 * time.Second})
	addUsers(t, local, 300)

	res := c.PushPendingUsers(context.Background())
	if res.Total != 300 || res.Success != 300 || res.Errors != 0 {
		t.Fatalf("result = %+v", res)
	}
	pending, err := local.PendingUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d after a clean push", len(pending))
	}
	if n := mem.Len(cloud.CollUsers); n != 300 {
		t.Errorf("remote users = %d, want 300", n)
	}
}

func TestPushCountsFailuresWithoutRetry(t *testing.T) {
	local, mem, c := newTestEnv(t)
	addUsers(t, local, 4)

	mem.BeforeAdd = func(_ string, doc cloud.Document) error {
		if doc.String(cloud.FieldEmail) == "u1@x.com" || doc.String(cloud.FieldEmail) == "u3@x.com" {
			return errors.New("quota exceeded")
		}
		return nil
	}

	res := c.PushPendingUsers(context.Background())
	if res.Total != 4 || res.Success != 2 || res.Errors != 2 {
		t.Fatalf("result = %+v", res)
	}
	if mem.Adds() != 2 {
		t.Errorf("adds = %d, failed rows must not be retried", mem.Adds())
	}

	pending, _ := local.PendingUsers()
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	for _, u := range pending {
		if u.FirebaseID != nil {
			t.Errorf("failed user %s has firebase id", u.Email)
		}
	}

	states, _ := local.GetSyncStates()
	if s := states[models.KindUser]; s.LastPushSuccess != 2 || s.LastPushErrors != 2 {
		t.Errorf("recorded state = %+v", s)
	}

	// the next run picks the failures up
	mem.BeforeAdd = nil
	res = c.PushPendingUsers(context.Background())
	if res.Total != 2 || res.Success != 2 {
		t.Errorf("retry run = %+v", res)
	}
	assertAllUsersSynced(t, local)
}

func TestConcurrentPushIsDropped(t *testing.T) {
	local, mem, c := newTestEnv(t)
	addUsers(t, local, 3)

	entered := make(chan struct{}, 3)
	unblock := make(chan struct{})
	mem.BeforeAdd = func(string, cloud.Document) error {
		entered <- struct{}{}
		<-unblock
		return nil
	}

	firstDone := make(chan Result, 1)
	c.PushPendingUsersAsync(context.Background(), func(r Result) { firstDone <- r })

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first push never reached the cloud store")
	}
	if !c.IsSyncing() {
		t.Fatal("guard should be set while the first push is in flight")
	}

	// the second call's callback fires synchronously
	var second *Result
	c.PushPendingUsersAsync(context.Background(), func(r Result) { second = &r })
	if second == nil || !second.Skipped {
		t.Fatalf("second call result = %+v, want immediate skip", second)
	}
	if res := c.PushPendingUsers(context.Background()); !res.Skipped {
		t.Errorf("synchronous push during flight = %+v, want skip", res)
	}
	if rep := c.PushAll(context.Background()); !rep.Skipped {
		t.Error("PushAll during flight should be skipped")
	}

	close(unblock)
	select {
	case r := <-firstDone:
		if r.Success != 3 {
			t.Errorf("first push = %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first push never finished")
	}

	if mem.Adds() != 3 {
		t.Errorf("adds = %d, want 3 (no duplicate writes)", mem.Adds())
	}
	if c.IsSyncing() {
		t.Error("guard should be released")
	}
}

func TestCrossProcessLockDropsPush(t *testing.T) {
	local, mem, _ := newTestEnv(t)
	addUsers(t, local, 1)
	c := New(local, mem, Options{CrossProcessLock: true})

	release, err := local.TrySyncLock()
	if err != nil {
		t.Fatalf("TrySyncLock: %v", err)
	}
	if res := c.PushPendingUsers(context.Background()); !res.Skipped {
		t.Errorf("push while another process holds the lock = %+v", res)
	}
	if c.IsSyncing() {
		t.Error("in-process guard must be released when the file lock is busy")
	}
	release()

	if res := c.PushPendingUsers(context.Background()); res.Success != 1 {
		t.Errorf("push after release = %+v", res)
	}
}

func TestPushAllAsyncDropsWhileGuardHeld(t *testing.T) {
	local, mem, c := newTestEnv(t)
	addUsers(t, local, 2)

	release, ok := c.begin()
	if !ok {
		t.Fatal("guard should be free")
	}
	var dropped *Report
	c.PushAllAsync(context.Background(), func(r Report) { dropped = &r })
	if dropped == nil || !dropped.Skipped {
		t.Fatalf("async push under a held guard = %+v, want immediate skip", dropped)
	}
	if mem.Adds() != 0 {
		t.Errorf("dropped push wrote %d documents", mem.Adds())
	}
	release()

	done := make(chan Report, 1)
	c.PushAllAsync(context.Background(), func(r Report) { done <- r })
	select {
	case rep := <-done:
		success, errs := rep.Totals()
		if rep.Skipped || errs != 0 || success < 2 {
			t.Errorf("async push = %+v", rep)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("async push never finished")
	}
	if c.IsSyncing() {
		t.Error("guard should be released after the async push")
	}
	assertAllUsersSynced(t, local)
}

func TestSeededRowsSharedAcrossStores(t *testing.T) {
	ctx := context.Background()
	mem := cloud.NewMemory()

	for device := 1; device <= 2; device++ {
		local, err := db.Initialize(t.TempDir())
		if err != nil {
			t.Fatalf("Initialize: %v", err)
		}
		t.Cleanup(func() { local.Close() })
		c := New(local, mem, Options{Concurrency: 4, CallTimeout: 5 * time.Second})

		rep := c.PushAll(ctx)
		if _, errs := rep.Totals(); errs != 0 {
			t.Fatalf("device %d push = %+v", device, rep.Results)
		}
		c.PullRoles(ctx)
		c.PullPermissions(ctx)
		grants := c.PullRolePermissions(ctx)
		if len(grants) != len(models.DefaultPermissions) {
			t.Errorf("device %d grants = %d, want %d", device, len(grants), len(models.DefaultPermissions))
		}

		pending, err := local.CountPending()
		if err != nil {
			t.Fatal(err)
		}
		for _, k := range []models.Kind{models.KindRole, models.KindPermission, models.KindRolePermission} {
			if pending[k] != 0 {
				t.Errorf("device %d: %d %s still pending", device, pending[k], k)
			}
		}
	}

	if n := mem.Len(cloud.CollRoles); n != 2 {
		t.Errorf("cloud roles = %d, want 2", n)
	}
	if n := mem.Len(cloud.CollPermissions); n != len(models.DefaultPermissions) {
		t.Errorf("cloud permissions = %d, want %d", n, len(models.DefaultPermissions))
	}
	if n := mem.Len(cloud.CollRolePermissions); n != len(models.DefaultPermissions) {
		t.Errorf("cloud grants = %d, want %d", n, len(models.DefaultPermissions))
	}
}

func TestSeededKindNotPushedWhenPullFails(t *testing.T) {
	_, mem, c := newTestEnv(t)
	mem.BeforeRead = func(coll string) error {
		if coll == cloud.CollRoles {
			return cloud.ErrUnavailable
		}
		return nil
	}

	res := c.PushPending(context.Background(), models.KindRole)
	if !errors.Is(res.LoadErr, ErrSharedNotPulled) {
		t.Errorf("LoadErr = %v, want ErrSharedNotPulled", res.LoadErr)
	}
	if res.Success != 0 || mem.Len(cloud.CollRoles) != 0 {
		t.Errorf("roles pushed without a pull: %+v", res)
	}

	if res := c.PushPending(context.Background(), models.KindPermission); res.LoadErr != nil || res.Success != len(models.DefaultPermissions) {
		t.Errorf("permission push = %+v", res)
	}
}

func TestPushAllResolvesReferences(t *testing.T) {
	local, mem, c := newTestEnv(t)
	u := addUsers(t, local, 1)[0]
	client, _ := local.GetRoleByName(models.RoleClient)
	if _, err := local.AssignRole(u.ID, client.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	cat := &models.Category{Name: "Video"}
	local.CreateCategory(cat)
	svc := &models.Service{Name: "Netflix", CategoryID: cat.ID, PriceCents: 1500, Active: true}
	local.CreateService(svc)
	p := &models.Purchase{UserID: u.ID, ServiceID: svc.ID, AmountCents: 1500}
	local.CreatePurchase(p)

	rep := c.PushAll(context.Background())
	success, errs := rep.Totals()
	if errs != 0 {
		t.Fatalf("errors = %d, report = %+v", errs, rep.Results)
	}
	// 2 roles + 6 permissions + 6 grants + category + service + user + link + purchase
	if want := 2 + 2*len(models.DefaultPermissions) + 5; success != want {
		t.Errorf("success = %d, want %d", success, want)
	}

	links, _ := mem.List(context.Background(), cloud.CollUserRoles)
	if len(links) != 1 {
		t.Fatalf("remote user roles = %d", len(links))
	}
	userFID, roleFID := cloud.UserRoleRefs(links[0])
	wantUser, _ := local.FirebaseIDFor(models.KindUser, u.ID)
	wantRole, _ := local.FirebaseIDFor(models.KindRole, client.ID)
	if userFID != wantUser || roleFID != wantRole {
		t.Errorf("link refs = %s/%s, want %s/%s", userFID, roleFID, wantUser, wantRole)
	}

	purchases, _ := mem.List(context.Background(), cloud.CollPurchases)
	if len(purchases) != 1 || purchases[0].Data.Float64(cloud.FieldAmount) != 15 {
		t.Errorf("remote purchase = %+v", purchases)
	}

	counts, _ := local.CountPending()
	for k, n := range counts {
		if n != 0 {
			t.Errorf("%s still has %d pending", k, n)
		}
	}
}

func TestPushFailsRowsWithUnsyncedParents(t *testing.T) {
	local, mem, c := newTestEnv(t)
	u := addUsers(t, local, 1)[0]
	admin, _ := local.GetRoleByName(models.RoleAdmin)
	local.AssignRole(u.ID, admin.ID)

	// push only the links; neither the user nor the role has a remote id
	res := c.PushPending(context.Background(), models.KindUserRole)
	if res.Total != 1 || res.Errors != 1 || res.Success != 0 {
		t.Fatalf("result = %+v", res)
	}
	if mem.Adds() != 0 {
		t.Errorf("adds = %d, nothing should be written", mem.Adds())
	}
}

func TestPushRespectsCancelledContext(t *testing.T) {
	local, mem, c := newTestEnv(t)
	addUsers(t, local, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.PushPendingUsers(ctx)
	if !res.Complete() || res.Errors != 3 {
		t.Errorf("cancelled push = %+v", res)
	}
	if mem.Adds() != 0 {
		t.Errorf("adds = %d", mem.Adds())
	}
}

func TestStatus(t *testing.T) {
	local, _, c := newTestEnv(t)
	addUsers(t, local, 2)

	st, err := c.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Pending[models.KindUser] != 2 {
		t.Errorf("pending users = %d", st.Pending[models.KindUser])
	}
	if st.TotalPending() == 0 || st.Syncing {
		t.Errorf("status = %+v", st)
	}
}
