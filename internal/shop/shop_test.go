package shop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streamzone/sz/internal/account"
	"github.com/streamzone/sz/internal/db"
	"github.com/streamzone/sz/internal/models"
)

type fixture struct {
	store  *db.DB
	admin  *models.User
	client *models.User
	svc    *models.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store, err := db.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	admin, err := account.Register(ctx, store, account.RegisterInput{Name: "Admin", Email: "admin@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register admin: %v", err)
	}
	client, err := account.Register(ctx, store, account.RegisterInput{Name: "Client", Email: "client@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register client: %v", err)
	}
	svc := &models.Service{Name: "Netflix", PriceCents: 1599, Active: true}
	if err := store.CreateService(svc); err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	return &fixture{store: store, admin: admin, client: client, svc: svc}
}

func TestDiscountedPrice(t *testing.T) {
	tests := []struct {
		cents   int64
		percent int
		want    int64
	}{
		{1000, 10, 900},
		{1599, 20, 1279},
		{999, 50, 500},
		{1, 99, 0},
		{100, 1, 99},
	}
	for _, tt := range tests {
		if got := DiscountedPrice(tt.cents, tt.percent); got != tt.want {
			t.Errorf("DiscountedPrice(%d, %d) = %d, want %d", tt.cents, tt.percent, got, tt.want)
		}
	}
}

func TestBuyAtServicePrice(t *testing.T) {
	f := setup(t)
	p, err := Buy(f.store, f.client.ID, f.svc.ID, 0)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if p.AmountCents != 1599 || p.Status != models.PurchasePending || p.OfferID != nil {
		t.Errorf("purchase = %+v", p)
	}
	if p.Sincronizado {
		t.Error("new purchase should be unsynced")
	}
	notes, _ := f.store.ListNotifications(f.client.ID, true)
	if len(notes) != 1 {
		t.Errorf("notifications = %d, want 1", len(notes))
	}
}

func TestBuyThroughOffer(t *testing.T) {
	f := setup(t)
	o, err := CreateOffer(f.store, f.admin.ID, OfferInput{ServiceID: f.svc.ID, DiscountPercent: 20})
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if o.PriceCents != 1279 || o.Title == "" || !o.Active {
		t.Errorf("offer = %+v", o)
	}

	p, err := Buy(f.store, f.client.ID, f.svc.ID, o.ID)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if p.AmountCents != 1279 || p.OfferID == nil || *p.OfferID != o.ID {
		t.Errorf("purchase = %+v", p)
	}

	if err := f.store.DeactivateOffer(o.ID); err != nil {
		t.Fatalf("DeactivateOffer: %v", err)
	}
	if _, err := Buy(f.store, f.client.ID, f.svc.ID, o.ID); !errors.Is(err, ErrOfferNotLive) {
		t.Errorf("inactive offer err = %v", err)
	}
}

func TestBuyRejections(t *testing.T) {
	f := setup(t)
	other := &models.Service{Name: "Max", PriceCents: 999, Active: true}
	f.store.CreateService(other)
	o, _ := CreateOffer(f.store, f.admin.ID, OfferInput{ServiceID: other.ID, DiscountPercent: 10})

	if _, err := Buy(f.store, f.client.ID, f.svc.ID, o.ID); !errors.Is(err, ErrOfferMismatch) {
		t.Errorf("mismatched offer err = %v", err)
	}

	expired, _ := CreateOffer(f.store, f.admin.ID, OfferInput{
		ServiceID: f.svc.ID, DiscountPercent: 10,
		StartsAt: time.Now().Add(-48 * time.Hour), EndsAt: time.Now().Add(-24 * time.Hour),
	})
	if _, err := Buy(f.store, f.client.ID, f.svc.ID, expired.ID); !errors.Is(err, ErrOfferNotLive) {
		t.Errorf("expired offer err = %v", err)
	}

	f.store.SetServiceActive(f.svc.ID, false)
	if _, err := Buy(f.store, f.client.ID, f.svc.ID, 0); !errors.Is(err, ErrServiceInactive) {
		t.Errorf("inactive service err = %v", err)
	}
	if _, err := Buy(f.store, f.client.ID, 9999, 0); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("missing service err = %v", err)
	}
}

func TestDecide(t *testing.T) {
	f := setup(t)
	p, _ := Buy(f.store, f.client.ID, f.svc.ID, 0)

	if _, err := Decide(f.store, f.client.ID, p.ID, true); !errors.Is(err, account.ErrForbidden) {
		t.Errorf("client decide err = %v", err)
	}

	got, err := Decide(f.store, f.admin.ID, p.ID, true)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got.Status != models.PurchaseApproved {
		t.Errorf("status = %s", got.Status)
	}
	if _, err := Decide(f.store, f.admin.ID, p.ID, false); !errors.Is(err, ErrNotPending) {
		t.Errorf("second decision err = %v", err)
	}

	notes, _ := f.store.ListNotifications(f.client.ID, false)
	if len(notes) != 2 || notes[0].Title != "Purchase approved" {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestCancel(t *testing.T) {
	f := setup(t)
	p, _ := Buy(f.store, f.client.ID, f.svc.ID, 0)

	if _, err := Cancel(f.store, f.admin.ID, p.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("foreign cancel err = %v", err)
	}
	got, err := Cancel(f.store, f.client.ID, p.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != models.PurchaseCancelled {
		t.Errorf("status = %s", got.Status)
	}
	if _, err := Cancel(f.store, f.client.ID, p.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("second cancel err = %v", err)
	}
	if _, err := Cancel(f.store, f.client.ID, 4242); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("missing purchase err = %v", err)
	}
}

func TestCreateOfferValidation(t *testing.T) {
	f := setup(t)
	for _, d := range []int{0, 100, -5} {
		if _, err := CreateOffer(f.store, f.admin.ID, OfferInput{ServiceID: f.svc.ID, DiscountPercent: d}); !errors.Is(err, ErrInvalidDiscount) {
			t.Errorf("discount %d err = %v", d, err)
		}
	}
	if _, err := CreateOffer(f.store, f.client.ID, OfferInput{ServiceID: f.svc.ID, DiscountPercent: 10}); !errors.Is(err, account.ErrForbidden) {
		t.Errorf("client offer err = %v", err)
	}
	now := time.Now()
	if _, err := CreateOffer(f.store, f.admin.ID, OfferInput{ServiceID: f.svc.ID, DiscountPercent: 10, StartsAt: now, EndsAt: now.Add(-time.Hour)}); err == nil {
		t.Error("expected error for offer ending before it starts")
	}
}
