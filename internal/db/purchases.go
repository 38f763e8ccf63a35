package db

import (
	"database/sql"
	"fmt"

	"github.com/streamzone/sz/internal/models"
)

const purchaseCols = `id, user_id, service_id, offer_id, monto, estado, created_at, sincronizado, firebase_id`

func scanPurchase(s scanner) (*models.Purchase, error) {
	var p models.Purchase
	var offer sql.NullInt64
	var status, created string
	var sc syncCols
	dest := append([]any{&p.ID, &p.UserID, &p.ServiceID, &offer, &p.AmountCents, &status, &created}, sc.dest()...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	if offer.Valid {
		v := offer.Int64
		p.OfferID = &v
	}
	p.Status = models.PurchaseStatus(status)
	p.CreatedAt = parseTime(created)
	p.SyncMeta = sc.meta()
	return &p, nil
}

func (db *DB) purchases(where string, args ...any) ([]models.Purchase, error) {
	rows, err := db.conn.Query(`SELECT `+purchaseCols+` FROM purchases `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreatePurchase inserts an unsynced purchase
func (db *DB) CreatePurchase(p *models.Purchase) error {
	if p.Status == "" {
		p.Status = models.PurchasePending
	}
	if !models.IsValidPurchaseStatus(p.Status) {
		return fmt.Errorf("invalid purchase status %q", p.Status)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowUTC()
	}
	var offer any
	if p.OfferID != nil {
		offer = *p.OfferID
	}
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			INSERT INTO purchases (user_id, service_id, offer_id, monto, estado, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.UserID, p.ServiceID, offer, p.AmountCents, string(p.Status), formatTime(p.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}
		p.ID, err = res.LastInsertId()
		p.SyncMeta = models.SyncMeta{}
		return err
	})
}

// GetPurchase returns a purchase by local ID
func (db *DB) GetPurchase(id int64) (*models.Purchase, error) {
	p, err := scanPurchase(db.conn.QueryRow(`SELECT `+purchaseCols+` FROM purchases WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPurchasesByUser returns a user's purchases, newest first
func (db *DB) ListPurchasesByUser(userID int64) ([]models.Purchase, error) {
	return db.purchases(`WHERE user_id = ? ORDER BY id DESC`, userID)
}

// ListPurchases returns purchases in a status, or all when status is empty
func (db *DB) ListPurchases(status models.PurchaseStatus) ([]models.Purchase, error) {
	if status == "" {
		return db.purchases(`ORDER BY id DESC`)
	}
	return db.purchases(`WHERE estado = ? ORDER BY id DESC`, string(status))
}

// TransitionPurchase moves a purchase from one status to another. It fails
// with ErrNotFound when the purchase is missing or not in the from status.
func (db *DB) TransitionPurchase(id int64, from, to models.PurchaseStatus) error {
	if !models.IsValidPurchaseStatus(to) {
		return fmt.Errorf("invalid purchase status %q", to)
	}
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`UPDATE purchases SET estado = ? WHERE id = ? AND estado = ?`,
			string(to), id, string(from))
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

const notificationCols = `id, user_id, titulo, mensaje, leida, created_at, sincronizado, firebase_id`

func scanNotification(s scanner) (*models.Notification, error) {
	var n models.Notification
	var read int
	var created string
	var sc syncCols
	dest := append([]any{&n.ID, &n.UserID, &n.Title, &n.Message, &read, &created}, sc.dest()...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	n.Read = read != 0
	n.CreatedAt = parseTime(created)
	n.SyncMeta = sc.meta()
	return &n, nil
}

func (db *DB) notifications(where string, args ...any) ([]models.Notification, error) {
	rows, err := db.conn.Query(`SELECT `+notificationCols+` FROM notifications `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// CreateNotification inserts an unsynced notification
func (db *DB) CreateNotification(n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = nowUTC()
	}
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			INSERT INTO notifications (user_id, titulo, mensaje, leida, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			n.UserID, n.Title, n.Message, boolInt(n.Read), formatTime(n.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		n.ID, err = res.LastInsertId()
		n.SyncMeta = models.SyncMeta{}
		return err
	})
}

// ListNotifications returns a user's notifications, newest first
func (db *DB) ListNotifications(userID int64, unreadOnly bool) ([]models.Notification, error) {
	if unreadOnly {
		return db.notifications(`WHERE user_id = ? AND leida = 0 ORDER BY id DESC`, userID)
	}
	return db.notifications(`WHERE user_id = ? ORDER BY id DESC`, userID)
}

// MarkNotificationRead marks one of the user's notifications as read
func (db *DB) MarkNotificationRead(userID, id int64) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`UPDATE notifications SET leida = 1 WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}
