package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/streamzone/sz/internal/models"
)

// ErrRemoteConflict means a pulled document's natural key already belongs to
// a different cloud document. The pulled document is not cached.
var ErrRemoteConflict = errors.New("already cached from another cloud document")

// Rows written by the Upsert* functions come from cloud documents and are
// stored as synced. A local unsynced row with the same natural key is
// adopted by the remote document instead of being duplicated.

// upsertNamed handles roles, permissions and categories
func (db *DB) upsertNamed(table, fid, name, descr string) (int64, error) {
	if fid == "" {
		return 0, fmt.Errorf("upsert %s %q: empty firebase id", table, name)
	}
	var id int64
	err := db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		err = tx.QueryRow(`SELECT id FROM `+table+` WHERE firebase_id = ?`, fid).Scan(&id)
		switch {
		case err == nil:
			if name != "" {
				if _, err := tx.Exec(`UPDATE `+table+` SET nombre = ?, descripcion = ? WHERE id = ?`, name, descr, id); err != nil {
					return fmt.Errorf("update %s: %w", table, err)
				}
			}
			return tx.Commit()
		case err != sql.ErrNoRows:
			return err
		}

		var synced int
		err = tx.QueryRow(`SELECT id, sincronizado FROM `+table+` WHERE nombre = ?`, name).Scan(&id, &synced)
		switch {
		case err == nil && synced == 0:
			if _, err := tx.Exec(`UPDATE `+table+` SET sincronizado = 1, firebase_id = ?, descripcion = ? WHERE id = ?`, fid, descr, id); err != nil {
				return fmt.Errorf("adopt %s: %w", table, err)
			}
		case err == nil:
			return fmt.Errorf("%s %q: %w", table, name, ErrRemoteConflict)
		case err == sql.ErrNoRows:
			res, err := tx.Exec(`INSERT INTO `+table+` (nombre, descripcion, sincronizado, firebase_id) VALUES (?, ?, 1, ?)`, name, descr, fid)
			if err != nil {
				return fmt.Errorf("insert %s: %w", table, err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return err
			}
		default:
			return err
		}
		return tx.Commit()
	})
	return id, err
}

// UpsertPulledRole caches a role document
func (db *DB) UpsertPulledRole(r *models.Role) error {
	id, err := db.upsertNamed("roles", r.RemoteID(), r.Name, r.Description)
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// UpsertPulledPermission caches a permission document
func (db *DB) UpsertPulledPermission(p *models.Permission) error {
	id, err := db.upsertNamed("permissions", p.RemoteID(), p.Name, p.Description)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// UpsertPulledCategory caches a category document
func (db *DB) UpsertPulledCategory(c *models.Category) error {
	id, err := db.upsertNamed("categories", c.RemoteID(), c.Name, c.Description)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// upsertLink handles role_permissions and user_roles
func (db *DB) upsertLink(table, a, b string, x, y int64, fid string) (int64, error) {
	if fid == "" {
		return 0, fmt.Errorf("upsert %s: empty firebase id", table)
	}
	var id int64
	err := db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		err = tx.QueryRow(`SELECT id FROM `+table+` WHERE firebase_id = ?`, fid).Scan(&id)
		if err == nil {
			return tx.Commit()
		}
		if err != sql.ErrNoRows {
			return err
		}

		var synced int
		err = tx.QueryRow(`SELECT id, sincronizado FROM `+table+` WHERE `+a+` = ? AND `+b+` = ?`, x, y).Scan(&id, &synced)
		switch {
		case err == nil && synced == 0:
			if _, err := tx.Exec(`UPDATE `+table+` SET sincronizado = 1, firebase_id = ? WHERE id = ?`, fid, id); err != nil {
				return fmt.Errorf("adopt %s: %w", table, err)
			}
		case err == nil:
			return fmt.Errorf("%s %d/%d: %w", table, x, y, ErrRemoteConflict)
		case err == sql.ErrNoRows:
			res, err := tx.Exec(`INSERT INTO `+table+` (`+a+`, `+b+`, sincronizado, firebase_id) VALUES (?, ?, 1, ?)`, x, y, fid)
			if err != nil {
				return fmt.Errorf("insert %s: %w", table, err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return err
			}
		default:
			return err
		}
		return tx.Commit()
	})
	return id, err
}

// UpsertPulledRolePermission caches a role-permission document. Both ends
// must already be cached; ErrNotFound otherwise.
func (db *DB) UpsertPulledRolePermission(fid, roleFID, permissionFID string) (*models.RolePermission, error) {
	roleID, err := db.LocalIDForFirebase(models.KindRole, roleFID)
	if err != nil {
		return nil, fmt.Errorf("role %q: %w", roleFID, err)
	}
	permID, err := db.LocalIDForFirebase(models.KindPermission, permissionFID)
	if err != nil {
		return nil, fmt.Errorf("permission %q: %w", permissionFID, err)
	}
	id, err := db.upsertLink("role_permissions", "role_id", "permission_id", roleID, permID, fid)
	if err != nil {
		return nil, err
	}
	return &models.RolePermission{ID: id, RoleID: roleID, PermissionID: permID, SyncMeta: models.Synced(fid)}, nil
}

// UpsertPulledUserRole caches a user-role document
func (db *DB) UpsertPulledUserRole(fid string, userID, roleID int64) (*models.UserRole, error) {
	id, err := db.upsertLink("user_roles", "user_id", "role_id", userID, roleID, fid)
	if err != nil {
		return nil, err
	}
	return &models.UserRole{ID: id, UserID: userID, RoleID: roleID, SyncMeta: models.Synced(fid)}, nil
}

// UpsertPulledUser caches a user document. An empty password hash on the
// document keeps the local one.
func (db *DB) UpsertPulledUser(u *models.User) error {
	fid := u.RemoteID()
	if fid == "" {
		return fmt.Errorf("upsert user %q: empty firebase id", u.Email)
	}
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = nowUTC()
	}

	return db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var id int64
		var synced int
		err = tx.QueryRow(`SELECT id, 1 FROM users WHERE firebase_id = ?`, fid).Scan(&id, &synced)
		if err == sql.ErrNoRows {
			err = tx.QueryRow(`SELECT id, sincronizado FROM users WHERE email = ?`, u.Email).Scan(&id, &synced)
			if err == nil && synced == 1 {
				// email owned by a different remote document
				return fmt.Errorf("user %s: %w", u.Email, ErrEmailTaken)
			}
		}

		switch {
		case err == nil:
			if _, err := tx.Exec(`
				UPDATE users SET nombre = ?, telefono = ?, sincronizado = 1, firebase_id = ?,
					password_hash = CASE WHEN ? = '' THEN password_hash ELSE ? END
				WHERE id = ?`,
				u.Name, u.Phone, fid, u.PasswordHash, u.PasswordHash, id); err != nil {
				return fmt.Errorf("update user: %w", err)
			}
		case err == sql.ErrNoRows:
			res, err := tx.Exec(`
				INSERT INTO users (nombre, email, password_hash, telefono, created_at, sincronizado, firebase_id)
				VALUES (?, ?, ?, ?, ?, 1, ?)`,
				u.Name, u.Email, u.PasswordHash, u.Phone, formatTime(u.CreatedAt), fid)
			if err != nil {
				return fmt.Errorf("insert user: %w", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return err
			}
		default:
			return err
		}
		u.ID = id
		return tx.Commit()
	})
}

// UpsertPulledService caches a service document. An unknown category
// leaves the service uncategorized. Service names are not unique, so only
// the oldest unsynced service of the same name is adopted.
func (db *DB) UpsertPulledService(s *models.Service, categoryFID string) error {
	fid := s.RemoteID()
	if fid == "" {
		return fmt.Errorf("upsert service %q: empty firebase id", s.Name)
	}
	s.CategoryID = 0
	if categoryFID != "" {
		if id, err := db.LocalIDForFirebase(models.KindCategory, categoryFID); err == nil {
			s.CategoryID = id
		}
	}

	return db.withWriteLock(func() error {
		var id int64
		err := db.conn.QueryRow(`SELECT id FROM services WHERE firebase_id = ?`, fid).Scan(&id)
		if err == sql.ErrNoRows {
			err = db.conn.QueryRow(`SELECT id FROM services WHERE nombre = ? AND sincronizado = 0 ORDER BY id LIMIT 1`, s.Name).Scan(&id)
		}
		switch {
		case err == nil:
			_, err = db.conn.Exec(`
				UPDATE services SET nombre = ?, descripcion = ?, category_id = ?, precio = ?, imagen = ?, activo = ?,
					sincronizado = 1, firebase_id = ?
				WHERE id = ?`,
				s.Name, s.Description, nullID(s.CategoryID), s.PriceCents, s.ImageKey, boolInt(s.Active), fid, id)
			if err != nil {
				return fmt.Errorf("update service: %w", err)
			}
		case err == sql.ErrNoRows:
			res, err := db.conn.Exec(`
				INSERT INTO services (nombre, descripcion, category_id, precio, imagen, activo, sincronizado, firebase_id)
				VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
				s.Name, s.Description, nullID(s.CategoryID), s.PriceCents, s.ImageKey, boolInt(s.Active), fid)
			if err != nil {
				return fmt.Errorf("insert service: %w", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return err
			}
		default:
			return err
		}
		s.ID = id
		return nil
	})
}

// UpsertPulledOffer caches an offer document. The service must already be cached.
func (db *DB) UpsertPulledOffer(o *models.Offer, serviceFID string) error {
	fid := o.RemoteID()
	if fid == "" {
		return fmt.Errorf("upsert offer %q: empty firebase id", o.Title)
	}
	serviceID, err := db.LocalIDForFirebase(models.KindService, serviceFID)
	if err != nil {
		return fmt.Errorf("service %q: %w", serviceFID, err)
	}
	o.ServiceID = serviceID

	return db.withWriteLock(func() error {
		var id int64
		err := db.conn.QueryRow(`SELECT id FROM offers WHERE firebase_id = ?`, fid).Scan(&id)
		switch {
		case err == nil:
			_, err = db.conn.Exec(`
				UPDATE offers SET service_id = ?, titulo = ?, descuento = ?, precio_oferta = ?, inicio = ?, fin = ?, activa = ?
				WHERE id = ?`,
				o.ServiceID, o.Title, o.DiscountPercent, o.PriceCents,
				formatTime(o.StartsAt), formatTime(o.EndsAt), boolInt(o.Active), id)
			if err != nil {
				return fmt.Errorf("update offer: %w", err)
			}
		case err == sql.ErrNoRows:
			res, err := db.conn.Exec(`
				INSERT INTO offers (service_id, titulo, descuento, precio_oferta, inicio, fin, activa, sincronizado, firebase_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
				o.ServiceID, o.Title, o.DiscountPercent, o.PriceCents,
				formatTime(o.StartsAt), formatTime(o.EndsAt), boolInt(o.Active), fid)
			if err != nil {
				return fmt.Errorf("insert offer: %w", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return err
			}
		default:
			return err
		}
		o.ID = id
		return nil
	})
}
