package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/streamzone/sz/internal/models"
)

func categoryFrom(r namedRow) models.Category {
	return models.Category{ID: r.id, Name: r.name, Description: r.descr, SyncMeta: r.sc.meta()}
}

// CreateCategory inserts an unsynced category
func (db *DB) CreateCategory(c *models.Category) error {
	id, err := db.insertNamed("categories", c.Name, c.Description)
	if err != nil {
		return err
	}
	c.ID, c.SyncMeta = id, models.SyncMeta{}
	return nil
}

// ListCategories returns all categories by name
func (db *DB) ListCategories() ([]models.Category, error) {
	return db.categories(`ORDER BY nombre`)
}

func (db *DB) categories(where string, args ...any) ([]models.Category, error) {
	rows, err := db.queryNamed("categories", where, args...)
	if err != nil {
		return nil, err
	}
	out := make([]models.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, categoryFrom(r))
	}
	return out, nil
}

// GetCategoryByName looks up a category by name
func (db *DB) GetCategoryByName(name string) (*models.Category, error) {
	cs, err := db.categories(`WHERE nombre = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return nil, ErrNotFound
	}
	return &cs[0], nil
}

const serviceCols = `id, nombre, descripcion, category_id, precio, imagen, activo, sincronizado, firebase_id`

func scanService(s scanner) (*models.Service, error) {
	var sv models.Service
	var cat sql.NullInt64
	var active int
	var sc syncCols
	dest := append([]any{&sv.ID, &sv.Name, &sv.Description, &cat, &sv.PriceCents, &sv.ImageKey, &active}, sc.dest()...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	sv.CategoryID = cat.Int64
	sv.Active = active != 0
	sv.SyncMeta = sc.meta()
	return &sv, nil
}

func (db *DB) services(where string, args ...any) ([]models.Service, error) {
	rows, err := db.conn.Query(`SELECT `+serviceCols+` FROM services `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// CreateService inserts an unsynced service
func (db *DB) CreateService(s *models.Service) error {
	if s.PriceCents < 0 {
		return fmt.Errorf("price must not be negative")
	}
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			INSERT INTO services (nombre, descripcion, category_id, precio, imagen, activo)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.Name, s.Description, nullID(s.CategoryID), s.PriceCents, s.ImageKey, boolInt(s.Active))
		if err != nil {
			return fmt.Errorf("insert service: %w", err)
		}
		s.ID, err = res.LastInsertId()
		s.SyncMeta = models.SyncMeta{}
		return err
	})
}

// GetService returns a service by local ID
func (db *DB) GetService(id int64) (*models.Service, error) {
	s, err := scanService(db.conn.QueryRow(`SELECT `+serviceCols+` FROM services WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

// ListServices returns services, optionally limited to one category and to active ones
func (db *DB) ListServices(categoryID int64, activeOnly bool) ([]models.Service, error) {
	where := `WHERE 1=1`
	var args []any
	if categoryID != 0 {
		where += ` AND category_id = ?`
		args = append(args, categoryID)
	}
	if activeOnly {
		where += ` AND activo = 1`
	}
	return db.services(where+` ORDER BY nombre`, args...)
}

// SetServiceImage records the blob key of a service's image
func (db *DB) SetServiceImage(id int64, key string) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`UPDATE services SET imagen = ? WHERE id = ?`, key, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// SetServiceActive shows or hides a service in the catalog
func (db *DB) SetServiceActive(id int64, active bool) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`UPDATE services SET activo = ? WHERE id = ?`, boolInt(active), id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

const offerCols = `id, service_id, titulo, descuento, precio_oferta, inicio, fin, activa, sincronizado, firebase_id`

func scanOffer(s scanner) (*models.Offer, error) {
	var o models.Offer
	var starts, ends string
	var active int
	var sc syncCols
	dest := append([]any{&o.ID, &o.ServiceID, &o.Title, &o.DiscountPercent, &o.PriceCents, &starts, &ends, &active}, sc.dest()...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	o.StartsAt = parseTime(starts)
	o.EndsAt = parseTime(ends)
	o.Active = active != 0
	o.SyncMeta = sc.meta()
	return &o, nil
}

func (db *DB) offers(where string, args ...any) ([]models.Offer, error) {
	rows, err := db.conn.Query(`SELECT `+offerCols+` FROM offers `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// CreateOffer inserts an unsynced offer
func (db *DB) CreateOffer(o *models.Offer) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			INSERT INTO offers (service_id, titulo, descuento, precio_oferta, inicio, fin, activa)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.ServiceID, o.Title, o.DiscountPercent, o.PriceCents,
			formatTime(o.StartsAt), formatTime(o.EndsAt), boolInt(o.Active))
		if err != nil {
			return fmt.Errorf("insert offer: %w", err)
		}
		o.ID, err = res.LastInsertId()
		o.SyncMeta = models.SyncMeta{}
		return err
	})
}

// GetOffer returns an offer by local ID
func (db *DB) GetOffer(id int64) (*models.Offer, error) {
	o, err := scanOffer(db.conn.QueryRow(`SELECT `+offerCols+` FROM offers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return o, err
}

// ListLiveOffers returns offers that apply at t
func (db *DB) ListLiveOffers(t time.Time) ([]models.Offer, error) {
	all, err := db.offers(`WHERE activa = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	live := all[:0]
	for _, o := range all {
		if o.Live(t) {
			live = append(live, o)
		}
	}
	return live, nil
}

// ListOffers returns every offer
func (db *DB) ListOffers() ([]models.Offer, error) {
	return db.offers(`ORDER BY id`)
}

// DeactivateOffer ends an offer
func (db *DB) DeactivateOffer(id int64) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`UPDATE offers SET activa = 0 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}
