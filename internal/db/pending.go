package db

import (
	"database/sql"
	"fmt"

	"github.com/streamzone/sz/internal/models"
)

const pendingWhere = `WHERE sincronizado = 0 ORDER BY id`

// tableFor validates a kind before it is spliced into SQL
func tableFor(kind models.Kind) (string, error) {
	for _, k := range models.AllKinds {
		if k == kind {
			return string(k), nil
		}
	}
	return "", fmt.Errorf("unknown kind %q", kind)
}

// PendingUsers returns users not yet mirrored to the cloud
func (db *DB) PendingUsers() ([]models.User, error) {
	return db.queryUsers(pendingWhere)
}

// PendingRoles returns roles not yet mirrored to the cloud
func (db *DB) PendingRoles() ([]models.Role, error) {
	rows, err := db.queryNamed("roles", pendingWhere)
	if err != nil {
		return nil, err
	}
	out := make([]models.Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, roleFrom(r))
	}
	return out, nil
}

// PendingPermissions returns permissions not yet mirrored to the cloud
func (db *DB) PendingPermissions() ([]models.Permission, error) {
	rows, err := db.queryNamed("permissions", pendingWhere)
	if err != nil {
		return nil, err
	}
	out := make([]models.Permission, 0, len(rows))
	for _, r := range rows {
		out = append(out, permissionFrom(r))
	}
	return out, nil
}

// PendingCategories returns categories not yet mirrored to the cloud
func (db *DB) PendingCategories() ([]models.Category, error) {
	return db.categories(pendingWhere)
}

// PendingServices returns services not yet mirrored to the cloud
func (db *DB) PendingServices() ([]models.Service, error) {
	return db.services(pendingWhere)
}

// PendingOffers returns offers not yet mirrored to the cloud
func (db *DB) PendingOffers() ([]models.Offer, error) {
	return db.offers(pendingWhere)
}

// PendingPurchases returns purchases not yet mirrored to the cloud
func (db *DB) PendingPurchases() ([]models.Purchase, error) {
	return db.purchases(pendingWhere)
}

// PendingNotifications returns notifications not yet mirrored to the cloud
func (db *DB) PendingNotifications() ([]models.Notification, error) {
	return db.notifications(pendingWhere)
}

// PendingUserRoles returns user-role links not yet mirrored to the cloud
func (db *DB) PendingUserRoles() ([]models.UserRole, error) {
	return db.userRoles(pendingWhere)
}

// PendingRolePermissions returns role-permission links not yet mirrored to the cloud
func (db *DB) PendingRolePermissions() ([]models.RolePermission, error) {
	return db.rolePermissions(pendingWhere)
}

// MarkSynced records the remote ID of a row and flips its flag. Rows that
// are already synced are left alone; the return value reports whether the
// row changed.
func (db *DB) MarkSynced(kind models.Kind, localID int64, firebaseID string) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	if firebaseID == "" {
		return false, fmt.Errorf("mark %s %d synced: empty firebase id", table, localID)
	}

	var changed bool
	err = db.withWriteLock(func() error {
		res, err := db.conn.Exec(`UPDATE `+table+` SET sincronizado = 1, firebase_id = ? WHERE id = ? AND sincronizado = 0`,
			firebaseID, localID)
		if err != nil {
			return fmt.Errorf("mark %s %d synced: %w", table, localID, err)
		}
		n, err := res.RowsAffected()
		changed = n > 0
		return err
	})
	return changed, err
}

// FirebaseIDFor returns the remote ID of a local row, "" when the row is unsynced
func (db *DB) FirebaseIDFor(kind models.Kind, localID int64) (string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return "", err
	}
	var fid sql.NullString
	err = db.conn.QueryRow(`SELECT firebase_id FROM `+table+` WHERE id = ?`, localID).Scan(&fid)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return fid.String, nil
}

// LocalIDForFirebase maps a remote ID back to a local row ID
func (db *DB) LocalIDForFirebase(kind models.Kind, firebaseID string) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.conn.QueryRow(`SELECT id FROM `+table+` WHERE firebase_id = ?`, firebaseID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return id, err
}

// CountPending returns the number of unsynced rows per kind
func (db *DB) CountPending() (map[models.Kind]int64, error) {
	counts := make(map[models.Kind]int64, len(models.AllKinds))
	for _, k := range models.AllKinds {
		var n int64
		if err := db.conn.QueryRow(`SELECT COUNT(*) FROM ` + string(k) + ` WHERE sincronizado = 0`).Scan(&n); err != nil {
			return nil, fmt.Errorf("count pending %s: %w", k, err)
		}
		counts[k] = n
	}
	return counts, nil
}

// CheckSyncInvariant returns the number of rows whose flag and remote ID
// disagree. The schema rejects such rows, so anything but zero means the
// file was edited outside sz.
func (db *DB) CheckSyncInvariant() (int64, error) {
	var total int64
	for _, k := range models.AllKinds {
		var n int64
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM ` + string(k) + `
			WHERE (sincronizado = 1 AND (firebase_id IS NULL OR firebase_id = ''))
			   OR (sincronizado = 0 AND firebase_id IS NOT NULL)`).Scan(&n)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
