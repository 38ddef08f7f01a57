package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uvolbolmasin/boxbot/internal/models"
)

// UpsertUser creates the user or overwrites every field of an existing one.
func (db *DB) UpsertUser(ctx context.Context, u models.User) error {
	_, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		`INSERT INTO users (id, name, phone, lat, lon) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			lat = excluded.lat,
			lon = excluded.lon`),
		u.ID, models.TruncateName(u.Name, models.MaxDisplayName), u.Phone, u.Lat, u.Lon,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a registered user by Telegram ID
func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := db.conn.GetContext(ctx, &u,
		db.conn.Rebind(`SELECT id, name, phone, lat, lon FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// CountUsers returns the number of registered users.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
