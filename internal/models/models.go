package models

import (
	"fmt"
	"time"
)

// Kind identifies a syncable table
type Kind string

const (
	KindRole           Kind = "roles"
	KindPermission     Kind = "permissions"
	KindCategory       Kind = "categories"
	KindService        Kind = "services"
	KindUser           Kind = "users"
	KindUserRole       Kind = "user_roles"
	KindRolePermission Kind = "role_permissions"
	KindOffer          Kind = "offers"
	KindPurchase       Kind = "purchases"
	KindNotification   Kind = "notifications"
)

// AllKinds lists every syncable kind in push order. Parents come before the
// rows that reference them so a single pass can resolve remote references.
var AllKinds = []Kind{
	KindRole,
	KindPermission,
	KindCategory,
	KindService,
	KindUser,
	KindUserRole,
	KindRolePermission,
	KindOffer,
	KindPurchase,
	KindNotification,
}

// ParseKind resolves a table name or a common alias to a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "user", "usuarios":
		return KindUser, nil
	case "role":
		return KindRole, nil
	case "permission":
		return KindPermission, nil
	case "category":
		return KindCategory, nil
	case "service":
		return KindService, nil
	case "offer":
		return KindOffer, nil
	case "purchase":
		return KindPurchase, nil
	case "notification":
		return KindNotification, nil
	case "user_role":
		return KindUserRole, nil
	case "role_permission":
		return KindRolePermission, nil
	}
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// SyncMeta is embedded in every row that mirrors a cloud document.
//
// A row with Sincronizado=true always carries a FirebaseID and a row with
// Sincronizado=false never does. Only the sync coordinator flips the flag,
// and it never flips it back.
type SyncMeta struct {
	Sincronizado bool    `json:"sincronizado"`
	FirebaseID   *string `json:"firebase_id,omitempty"`
}

// Valid reports whether the flag and the remote ID agree
func (m SyncMeta) Valid() bool {
	if m.Sincronizado {
		return m.FirebaseID != nil && *m.FirebaseID != ""
	}
	return m.FirebaseID == nil
}

// RemoteID returns the firebase ID or "" when the row is not synced
func (m SyncMeta) RemoteID() string {
	if m.FirebaseID == nil {
		return ""
	}
	return *m.FirebaseID
}

// Synced returns a SyncMeta for a row confirmed in the cloud
func Synced(firebaseID string) SyncMeta {
	id := firebaseID
	return SyncMeta{Sincronizado: true, FirebaseID: &id}
}

// User is an account holder
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"nombre"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"telefono,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	SyncMeta
}

// Role groups permissions
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion,omitempty"`
	SyncMeta
}

// Built-in role names
const (
	RoleAdmin  = "admin"
	RoleClient = "cliente"
)

// Permission is a named capability
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion,omitempty"`
	SyncMeta
}

// Built-in permission names
const (
	PermManageRoles       = "manage_roles"
	PermManagePermissions = "manage_permissions"
	PermManageCatalog     = "manage_catalog"
	PermManageOffers      = "manage_offers"
	PermManagePurchases   = "manage_purchases"
	PermViewAdmin         = "view_admin"
)

// DefaultPermissions are seeded into every new store and granted to admin
var DefaultPermissions = []Permission{
	{Name: PermManageRoles, Description: "Create roles and change their permissions"},
	{Name: PermManagePermissions, Description: "Create permissions"},
	{Name: PermManageCatalog, Description: "Manage categories and services"},
	{Name: PermManageOffers, Description: "Create and end offers"},
	{Name: PermManagePurchases, Description: "Approve or reject purchases"},
	{Name: PermViewAdmin, Description: "Open the admin panel"},
}

// RolePermission links a role to a permission
type RolePermission struct {
	ID           int64 `json:"id"`
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
	SyncMeta
}

// UserRole links a user to a role
type UserRole struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	RoleID int64 `json:"role_id"`
	SyncMeta
}

// Category groups services in the catalog
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion,omitempty"`
	SyncMeta
}

// Service is a streaming subscription offered in the catalog
type Service struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion,omitempty"`
	CategoryID  int64  `json:"category_id,omitempty"`
	PriceCents  int64  `json:"precio"`
	ImageKey    string `json:"imagen,omitempty"`
	Active      bool   `json:"activo"`
	SyncMeta
}

// Offer is a time-boxed discount on a service
type Offer struct {
	ID              int64     `json:"id"`
	ServiceID       int64     `json:"service_id"`
	Title           string    `json:"titulo"`
	DiscountPercent int       `json:"descuento"`
	PriceCents      int64     `json:"precio_oferta"`
	StartsAt        time.Time `json:"inicio"`
	EndsAt          time.Time `json:"fin"`
	Active          bool      `json:"activa"`
	SyncMeta
}

// Live reports whether the offer applies at t
func (o Offer) Live(t time.Time) bool {
	if !o.Active {
		return false
	}
	if !o.StartsAt.IsZero() && t.Before(o.StartsAt) {
		return false
	}
	if !o.EndsAt.IsZero() && !t.Before(o.EndsAt) {
		return false
	}
	return true
}

// PurchaseStatus tracks a purchase through review
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseApproved  PurchaseStatus = "approved"
	PurchaseRejected  PurchaseStatus = "rejected"
	PurchaseCancelled PurchaseStatus = "cancelled"
)

// IsValidPurchaseStatus checks if a status string is known
func IsValidPurchaseStatus(s PurchaseStatus) bool {
	switch s {
	case PurchasePending, PurchaseApproved, PurchaseRejected, PurchaseCancelled:
		return true
	}
	return false
}

// Purchase is a user's request to buy a service, optionally through an offer
type Purchase struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"user_id"`
	ServiceID   int64          `json:"service_id"`
	OfferID     *int64         `json:"offer_id,omitempty"`
	AmountCents int64          `json:"monto"`
	Status      PurchaseStatus `json:"estado"`
	CreatedAt   time.Time      `json:"created_at"`
	SyncMeta
}

// Notification is a message for a single user
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"titulo"`
	Message   string    `json:"mensaje"`
	Read      bool      `json:"leida"`
	CreatedAt time.Time `json:"created_at"`
	SyncMeta
}

// FormatCents renders an amount of cents as dollars
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}
