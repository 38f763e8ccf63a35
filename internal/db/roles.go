package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/streamzone/sz/internal/models"
)

// ErrDuplicate is returned when a named row or link already exists
var ErrDuplicate = errors.New("already exists")

// named rows (roles, permissions, categories) share a shape
type namedRow struct {
	id          int64
	name, descr string
	sc          syncCols
}

func (db *DB) queryNamed(table, where string, args ...any) ([]namedRow, error) {
	rows, err := db.conn.Query(`SELECT id, nombre, descripcion, sincronizado, firebase_id FROM `+table+` `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []namedRow
	for rows.Next() {
		var r namedRow
		if err := rows.Scan(append([]any{&r.id, &r.name, &r.descr}, r.sc.dest()...)...); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) insertNamed(table, name, descr string) (int64, error) {
	var id int64
	err := db.withWriteLock(func() error {
		res, err := db.conn.Exec(`INSERT INTO `+table+` (nombre, descripcion) VALUES (?, ?)`, name, descr)
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %q: %w", table, name, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func roleFrom(r namedRow) models.Role {
	return models.Role{ID: r.id, Name: r.name, Description: r.descr, SyncMeta: r.sc.meta()}
}

func permissionFrom(r namedRow) models.Permission {
	return models.Permission{ID: r.id, Name: r.name, Description: r.descr, SyncMeta: r.sc.meta()}
}

// CreateRole inserts an unsynced role
func (db *DB) CreateRole(r *models.Role) error {
	id, err := db.insertNamed("roles", r.Name, r.Description)
	if err != nil {
		return err
	}
	r.ID, r.SyncMeta = id, models.SyncMeta{}
	return nil
}

// ListRoles returns all roles by name
func (db *DB) ListRoles() ([]models.Role, error) {
	rows, err := db.queryNamed("roles", `ORDER BY nombre`)
	if err != nil {
		return nil, err
	}
	out := make([]models.Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, roleFrom(r))
	}
	return out, nil
}

// GetRoleByName looks up a role by its unique name
func (db *DB) GetRoleByName(name string) (*models.Role, error) {
	rows, err := db.queryNamed("roles", `WHERE nombre = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	r := roleFrom(rows[0])
	return &r, nil
}

// GetRole looks up a role by local ID
func (db *DB) GetRole(id int64) (*models.Role, error) {
	rows, err := db.queryNamed("roles", `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	r := roleFrom(rows[0])
	return &r, nil
}

// CreatePermission inserts an unsynced permission
func (db *DB) CreatePermission(p *models.Permission) error {
	id, err := db.insertNamed("permissions", p.Name, p.Description)
	if err != nil {
		return err
	}
	p.ID, p.SyncMeta = id, models.SyncMeta{}
	return nil
}

// ListPermissions returns all permissions by name
func (db *DB) ListPermissions() ([]models.Permission, error) {
	rows, err := db.queryNamed("permissions", `ORDER BY nombre`)
	if err != nil {
		return nil, err
	}
	out := make([]models.Permission, 0, len(rows))
	for _, r := range rows {
		out = append(out, permissionFrom(r))
	}
	return out, nil
}

// GetPermissionByName looks up a permission by name
func (db *DB) GetPermissionByName(name string) (*models.Permission, error) {
	rows, err := db.queryNamed("permissions", `WHERE nombre = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	p := permissionFrom(rows[0])
	return &p, nil
}

// link tables (role_permissions, user_roles) share a shape
func (db *DB) queryLinks(table, a, b, where string, args ...any) ([][2]int64, []int64, []syncCols, error) {
	rows, err := db.conn.Query(`SELECT id, `+a+`, `+b+`, sincronizado, firebase_id FROM `+table+` `+where, args...)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	var pairs [][2]int64
	var ids []int64
	var scs []syncCols
	for rows.Next() {
		var id, x, y int64
		var sc syncCols
		if err := rows.Scan(append([]any{&id, &x, &y}, sc.dest()...)...); err != nil {
			return nil, nil, nil, err
		}
		ids = append(ids, id)
		pairs = append(pairs, [2]int64{x, y})
		scs = append(scs, sc)
	}
	return pairs, ids, scs, rows.Err()
}

func (db *DB) insertLink(table, a, b string, x, y int64) (int64, error) {
	var id int64
	err := db.withWriteLock(func() error {
		res, err := db.conn.Exec(`INSERT INTO `+table+` (`+a+`, `+b+`) VALUES (?, ?)`, x, y)
		if isUniqueViolation(err) {
			return fmt.Errorf("%s (%d, %d): %w", table, x, y, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (db *DB) deleteLink(table, a, b string, x, y int64) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`DELETE FROM `+table+` WHERE `+a+` = ? AND `+b+` = ?`, x, y)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// GrantPermission links a permission to a role
func (db *DB) GrantPermission(roleID, permissionID int64) (*models.RolePermission, error) {
	id, err := db.insertLink("role_permissions", "role_id", "permission_id", roleID, permissionID)
	if err != nil {
		return nil, err
	}
	return &models.RolePermission{ID: id, RoleID: roleID, PermissionID: permissionID}, nil
}

// RevokePermission removes a role-permission link locally
func (db *DB) RevokePermission(roleID, permissionID int64) error {
	return db.deleteLink("role_permissions", "role_id", "permission_id", roleID, permissionID)
}

// ListRolePermissions returns every role-permission link
func (db *DB) ListRolePermissions() ([]models.RolePermission, error) {
	return db.rolePermissions(`ORDER BY id`)
}

func (db *DB) rolePermissions(where string, args ...any) ([]models.RolePermission, error) {
	pairs, ids, scs, err := db.queryLinks("role_permissions", "role_id", "permission_id", where, args...)
	if err != nil {
		return nil, err
	}
	out := make([]models.RolePermission, len(ids))
	for i := range ids {
		out[i] = models.RolePermission{ID: ids[i], RoleID: pairs[i][0], PermissionID: pairs[i][1], SyncMeta: scs[i].meta()}
	}
	return out, nil
}

// PermissionsForRole lists the permissions granted to a role
func (db *DB) PermissionsForRole(roleID int64) ([]models.Permission, error) {
	rows, err := db.queryNamed("permissions",
		`WHERE id IN (SELECT permission_id FROM role_permissions WHERE role_id = ?) ORDER BY nombre`, roleID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Permission, 0, len(rows))
	for _, r := range rows {
		out = append(out, permissionFrom(r))
	}
	return out, nil
}

// AssignRole links a role to a user
func (db *DB) AssignRole(userID, roleID int64) (*models.UserRole, error) {
	id, err := db.insertLink("user_roles", "user_id", "role_id", userID, roleID)
	if err != nil {
		return nil, err
	}
	return &models.UserRole{ID: id, UserID: userID, RoleID: roleID}, nil
}

// RemoveRole removes a user-role link locally
func (db *DB) RemoveRole(userID, roleID int64) error {
	return db.deleteLink("user_roles", "user_id", "role_id", userID, roleID)
}

func (db *DB) userRoles(where string, args ...any) ([]models.UserRole, error) {
	pairs, ids, scs, err := db.queryLinks("user_roles", "user_id", "role_id", where, args...)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserRole, len(ids))
	for i := range ids {
		out[i] = models.UserRole{ID: ids[i], UserID: pairs[i][0], RoleID: pairs[i][1], SyncMeta: scs[i].meta()}
	}
	return out, nil
}

// RolesForUser lists the roles assigned to a user
func (db *DB) RolesForUser(userID int64) ([]models.Role, error) {
	rows, err := db.queryNamed("roles",
		`WHERE id IN (SELECT role_id FROM user_roles WHERE user_id = ?) ORDER BY nombre`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, roleFrom(r))
	}
	return out, nil
}

// UserHasPermission reports whether any of the user's roles grants name
func (db *DB) UserHasPermission(userID int64, name string) (bool, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*)
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = ? AND p.nombre = ?`, userID, name).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	return n > 0, nil
}

// seedDefaults creates the built-in roles and permissions when missing and
// grants every default permission to admin.
func (db *DB) seedDefaults() error {
	return db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, r := range []models.Role{
			{Name: models.RoleAdmin, Description: "Full access to the admin panel"},
			{Name: models.RoleClient, Description: "Can browse and buy services"},
		} {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO roles (nombre, descripcion) VALUES (?, ?)`, r.Name, r.Description); err != nil {
				return fmt.Errorf("seed role %s: %w", r.Name, err)
			}
		}
		for _, p := range models.DefaultPermissions {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO permissions (nombre, descripcion) VALUES (?, ?)`, p.Name, p.Description); err != nil {
				return fmt.Errorf("seed permission %s: %w", p.Name, err)
			}
			if _, err := tx.Exec(`
				INSERT OR IGNORE INTO role_permissions (role_id, permission_id)
				SELECT r.id, p.id FROM roles r, permissions p
				WHERE r.nombre = ? AND p.nombre = ?`, models.RoleAdmin, p.Name); err != nil {
				return fmt.Errorf("seed grant %s: %w", p.Name, err)
			}
		}
		return tx.Commit()
	})
}
