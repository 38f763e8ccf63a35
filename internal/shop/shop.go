// Package shop holds the purchase and offer rules layered over the local store.
package shop

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/streamzone/sz/internal/account"
	"github.com/streamzone/sz/internal/db"
	"github.com/streamzone/sz/internal/models"
)

var (
	ErrServiceInactive = errors.New("service is not available")
	ErrOfferNotLive    = errors.New("offer is not active")
	ErrOfferMismatch   = errors.New("offer does not apply to this service")
	ErrNotPending      = errors.New("purchase is no longer pending")
	ErrNotOwner        = errors.New("purchase belongs to another user")
	ErrInvalidDiscount = errors.New("discount must be between 1 and 99 percent")
)

// Clock is overridable in tests
var Clock = func() time.Time { return time.Now().UTC() }

// Buy records a pending purchase of a service. A non-zero offerID buys at
// the offer price; the offer must be live and belong to the service.
func Buy(store *db.DB, userID, serviceID, offerID int64) (*models.Purchase, error) {
	svc, err := store.GetService(serviceID)
	if err != nil {
		return nil, fmt.Errorf("service %d: %w", serviceID, err)
	}
	if !svc.Active {
		return nil, fmt.Errorf("%s: %w", svc.Name, ErrServiceInactive)
	}

	p := &models.Purchase{
		UserID:      userID,
		ServiceID:   svc.ID,
		AmountCents: svc.PriceCents,
		Status:      models.PurchasePending,
	}
	if offerID != 0 {
		o, err := store.GetOffer(offerID)
		if err != nil {
			return nil, fmt.Errorf("offer %d: %w", offerID, err)
		}
		if o.ServiceID != svc.ID {
			return nil, ErrOfferMismatch
		}
		if !o.Live(Clock()) {
			return nil, ErrOfferNotLive
		}
		p.OfferID = &o.ID
		p.AmountCents = o.PriceCents
	}

	if err := store.CreatePurchase(p); err != nil {
		return nil, err
	}
	notify(store, userID, "Purchase received",
		fmt.Sprintf("Your purchase of %s for %s is pending review.", svc.Name, models.FormatCents(p.AmountCents)))
	slog.Info("purchase created", "id", p.ID, "user", userID, "service", svc.ID, "amount", p.AmountCents)
	return p, nil
}

// Decide approves or rejects a pending purchase on behalf of an admin and
// notifies the buyer.
func Decide(store *db.DB, adminID, purchaseID int64, approve bool) (*models.Purchase, error) {
	if err := account.RequirePermission(store, adminID, models.PermManagePurchases); err != nil {
		return nil, err
	}
	to := models.PurchaseRejected
	if approve {
		to = models.PurchaseApproved
	}
	p, err := transition(store, purchaseID, to)
	if err != nil {
		return nil, err
	}

	name := serviceName(store, p.ServiceID)
	if approve {
		notify(store, p.UserID, "Purchase approved", fmt.Sprintf("Your purchase of %s was approved.", name))
	} else {
		notify(store, p.UserID, "Purchase rejected", fmt.Sprintf("Your purchase of %s was rejected.", name))
	}
	return p, nil
}

// Cancel lets the buyer withdraw a pending purchase
func Cancel(store *db.DB, userID, purchaseID int64) (*models.Purchase, error) {
	p, err := store.GetPurchase(purchaseID)
	if err != nil {
		return nil, fmt.Errorf("purchase %d: %w", purchaseID, err)
	}
	if p.UserID != userID {
		return nil, ErrNotOwner
	}
	return transition(store, purchaseID, models.PurchaseCancelled)
}

func transition(store *db.DB, purchaseID int64, to models.PurchaseStatus) (*models.Purchase, error) {
	err := store.TransitionPurchase(purchaseID, models.PurchasePending, to)
	if errors.Is(err, db.ErrNotFound) {
		if _, gerr := store.GetPurchase(purchaseID); gerr != nil {
			return nil, fmt.Errorf("purchase %d: %w", purchaseID, gerr)
		}
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, err
	}
	return store.GetPurchase(purchaseID)
}

// OfferInput describes a new offer
type OfferInput struct {
	ServiceID       int64
	Title           string
	DiscountPercent int
	StartsAt        time.Time
	EndsAt          time.Time
}

// CreateOffer adds an offer priced off the service's current price
func CreateOffer(store *db.DB, adminID int64, in OfferInput) (*models.Offer, error) {
	if err := account.RequirePermission(store, adminID, models.PermManageOffers); err != nil {
		return nil, err
	}
	if in.DiscountPercent < 1 || in.DiscountPercent > 99 {
		return nil, ErrInvalidDiscount
	}
	if !in.StartsAt.IsZero() && !in.EndsAt.IsZero() && !in.EndsAt.After(in.StartsAt) {
		return nil, errors.New("offer must end after it starts")
	}
	svc, err := store.GetService(in.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("service %d: %w", in.ServiceID, err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = fmt.Sprintf("%d%% off %s", in.DiscountPercent, svc.Name)
	}
	o := &models.Offer{
		ServiceID:       svc.ID,
		Title:           title,
		DiscountPercent: in.DiscountPercent,
		PriceCents:      DiscountedPrice(svc.PriceCents, in.DiscountPercent),
		StartsAt:        in.StartsAt,
		EndsAt:          in.EndsAt,
		Active:          true,
	}
	if err := store.CreateOffer(o); err != nil {
		return nil, err
	}
	return o, nil
}

// DiscountedPrice applies a percentage discount, rounding half up to the cent
func DiscountedPrice(cents int64, percent int) int64 {
	return (cents*int64(100-percent) + 50) / 100
}

func serviceName(store *db.DB, id int64) string {
	svc, err := store.GetService(id)
	if err != nil {
		return fmt.Sprintf("service %d", id)
	}
	return svc.Name
}

// notify is best effort; a purchase stands even if its notification fails
func notify(store *db.DB, userID int64, title, msg string) {
	n := &models.Notification{UserID: userID, Title: title, Message: msg}
	if err := store.CreateNotification(n); err != nil {
		slog.Warn("create notification", "user", userID, "err", err)
	}
}
