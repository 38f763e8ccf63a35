package cloud

import (
	"time"

	"github.com/streamzone/sz/internal/models"
)

// Document field names. References to other entities hold the referenced
// document's ID.
const (
	FieldName         = "nombre"
	FieldDescription  = "descripcion"
	FieldEmail        = "email"
	FieldPassword     = "password"
	FieldPhone        = "telefono"
	FieldCreatedAt    = "createdAt"
	FieldRoleID       = "roleId"
	FieldPermissionID = "permissionId"
	FieldUserID       = "userId"
	FieldCategoryID   = "categoryId"
	FieldServiceID    = "serviceId"
	FieldOfferID      = "offerId"
	FieldPrice        = "precio"
	FieldImage        = "imagen"
	FieldActive       = "activo"
	FieldTitle        = "titulo"
	FieldDiscount     = "descuento"
	FieldOfferPrice   = "precioOferta"
	FieldStartsAt     = "inicio"
	FieldEndsAt       = "fin"
	FieldOfferActive  = "activa"
	FieldAmount       = "monto"
	FieldStatus       = "estado"
	FieldMessage      = "mensaje"
	FieldRead         = "leida"
	FieldDate         = "fecha"
)

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// UserDocument maps a user to its usuarios document. The password field
// carries the bcrypt hash, never the clear password.
func UserDocument(u models.User) Document {
	return Document{
		FieldName:      u.Name,
		FieldEmail:     u.Email,
		FieldPassword:  u.PasswordHash,
		FieldPhone:     u.Phone,
		FieldCreatedAt: timeOrNil(u.CreatedAt),
	}
}

// UserFromSnapshot maps a usuarios document to a synced user row
func UserFromSnapshot(s Snapshot) models.User {
	return models.User{
		Name:         s.Data.String(FieldName),
		Email:        s.Data.String(FieldEmail),
		PasswordHash: s.Data.String(FieldPassword),
		Phone:        s.Data.String(FieldPhone),
		CreatedAt:    s.Data.Time(FieldCreatedAt),
		SyncMeta:     models.Synced(s.ID),
	}
}

// NamedDocument maps roles, permissions and categories
func NamedDocument(name, description string) Document {
	return Document{FieldName: name, FieldDescription: description}
}

// RoleFromSnapshot maps a roles document
func RoleFromSnapshot(s Snapshot) models.Role {
	return models.Role{
		Name:        s.Data.String(FieldName),
		Description: s.Data.String(FieldDescription),
		SyncMeta:    models.Synced(s.ID),
	}
}

// PermissionFromSnapshot maps a permissions document
func PermissionFromSnapshot(s Snapshot) models.Permission {
	return models.Permission{
		Name:        s.Data.String(FieldName),
		Description: s.Data.String(FieldDescription),
		SyncMeta:    models.Synced(s.ID),
	}
}

// CategoryFromSnapshot maps a categories document
func CategoryFromSnapshot(s Snapshot) models.Category {
	return models.Category{
		Name:        s.Data.String(FieldName),
		Description: s.Data.String(FieldDescription),
		SyncMeta:    models.Synced(s.ID),
	}
}

// RolePermissionDocument maps a role-permission link given both remote IDs
func RolePermissionDocument(roleFID, permissionFID string) Document {
	return Document{FieldRoleID: roleFID, FieldPermissionID: permissionFID}
}

// RolePermissionRefs returns the remote IDs a role_permissions document links
func RolePermissionRefs(s Snapshot) (roleFID, permissionFID string) {
	return s.Data.String(FieldRoleID), s.Data.String(FieldPermissionID)
}

// UserRoleDocument maps a user-role link given both remote IDs
func UserRoleDocument(userFID, roleFID string) Document {
	return Document{FieldUserID: userFID, FieldRoleID: roleFID}
}

// UserRoleRefs returns the remote IDs a user_roles document links
func UserRoleRefs(s Snapshot) (userFID, roleFID string) {
	return s.Data.String(FieldUserID), s.Data.String(FieldRoleID)
}

// ServiceDocument maps a service; categoryFID may be empty
func ServiceDocument(sv models.Service, categoryFID string) Document {
	return Document{
		FieldName:        sv.Name,
		FieldDescription: sv.Description,
		FieldCategoryID:  categoryFID,
		FieldPrice:       centsToUnits(sv.PriceCents),
		FieldImage:       sv.ImageKey,
		FieldActive:      sv.Active,
	}
}

// ServiceFromSnapshot maps a services document and returns its category reference
func ServiceFromSnapshot(s Snapshot) (models.Service, string) {
	return models.Service{
		Name:        s.Data.String(FieldName),
		Description: s.Data.String(FieldDescription),
		PriceCents:  s.Data.Cents(FieldPrice),
		ImageKey:    s.Data.String(FieldImage),
		Active:      s.Data.Bool(FieldActive),
		SyncMeta:    models.Synced(s.ID),
	}, s.Data.String(FieldCategoryID)
}

// OfferDocument maps an offer given its service's remote ID
func OfferDocument(o models.Offer, serviceFID string) Document {
	return Document{
		FieldServiceID:   serviceFID,
		FieldTitle:       o.Title,
		FieldDiscount:    o.DiscountPercent,
		FieldOfferPrice:  centsToUnits(o.PriceCents),
		FieldStartsAt:    timeOrNil(o.StartsAt),
		FieldEndsAt:      timeOrNil(o.EndsAt),
		FieldOfferActive: o.Active,
	}
}

// OfferFromSnapshot maps an offers document and returns its service reference
func OfferFromSnapshot(s Snapshot) (models.Offer, string) {
	return models.Offer{
		Title:           s.Data.String(FieldTitle),
		DiscountPercent: int(s.Data.Int64(FieldDiscount)),
		PriceCents:      s.Data.Cents(FieldOfferPrice),
		StartsAt:        s.Data.Time(FieldStartsAt),
		EndsAt:          s.Data.Time(FieldEndsAt),
		Active:          s.Data.Bool(FieldOfferActive),
		SyncMeta:        models.Synced(s.ID),
	}, s.Data.String(FieldServiceID)
}

// PurchaseDocument maps a purchase given the remote IDs it references;
// offerFID may be empty.
func PurchaseDocument(p models.Purchase, userFID, serviceFID, offerFID string) Document {
	return Document{
		FieldUserID:    userFID,
		FieldServiceID: serviceFID,
		FieldOfferID:   offerFID,
		FieldAmount:    centsToUnits(p.AmountCents),
		FieldStatus:    string(p.Status),
		FieldDate:      timeOrNil(p.CreatedAt),
	}
}

// NotificationDocument maps a notification given its user's remote ID
func NotificationDocument(n models.Notification, userFID string) Document {
	return Document{
		FieldUserID:  userFID,
		FieldTitle:   n.Title,
		FieldMessage: n.Message,
		FieldRead:    n.Read,
		FieldDate:    timeOrNil(n.CreatedAt),
	}
}
