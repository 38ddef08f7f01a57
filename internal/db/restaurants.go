package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uvolbolmasin/boxbot/internal/models"
)

const restaurantColumns = `id, name, lat, lon, boxes`

// ListActive returns restaurants that still have boxes, oldest first.
func (db *DB) ListActive(ctx context.Context) ([]models.Restaurant, error) {
	var rests []models.Restaurant
	err := db.conn.SelectContext(ctx, &rests,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE boxes > 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active restaurants: %w", err)
	}
	return rests, nil
}

// ListAll returns every restaurant, including sold out ones.
func (db *DB) ListAll(ctx context.Context) ([]models.Restaurant, error) {
	var rests []models.Restaurant
	err := db.conn.SelectContext(ctx, &rests,
		`SELECT `+restaurantColumns+` FROM restaurants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list restaurants: %w", err)
	}
	return rests, nil
}

// GetRestaurant retrieves a restaurant by ID
func (db *DB) GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error) {
	return db.getOne(ctx, "get restaurant",
		`SELECT `+restaurantColumns+` FROM restaurants WHERE id = ?`, id)
}

// DecrementIfAvailable takes one box from the restaurant in a single
// conditional update. When two callers race for the last box exactly one of
// them gets the row back; the other gets models.ErrUnavailable. An unknown id
// also yields models.ErrUnavailable.
func (db *DB) DecrementIfAvailable(ctx context.Context, id int64) (*models.Restaurant, error) {
	rest, err := db.getOne(ctx, "reserve box",
		`UPDATE restaurants SET boxes = boxes - 1
		 WHERE id = ? AND boxes > 0
		 RETURNING `+restaurantColumns, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrUnavailable
	}
	return rest, err
}

// Increment adds delta boxes to the restaurant. A total above
// models.MaxBoxes is refused with models.ErrInvalidQuantity and leaves the
// row unchanged.
func (db *DB) Increment(ctx context.Context, id int64, delta int) (*models.Restaurant, error) {
	if delta <= 0 || delta > models.MaxBoxes {
		return nil, fmt.Errorf("%w: delta %d", models.ErrInvalidQuantity, delta)
	}
	rest, err := db.getOne(ctx, "add boxes",
		`UPDATE restaurants SET boxes = boxes + ?
		 WHERE id = ? AND boxes <= ?
		 RETURNING `+restaurantColumns,
		delta, id, models.MaxBoxes-delta)
	if !errors.Is(err, models.ErrNotFound) {
		return rest, err
	}

	// No row matched: either the restaurant is gone or the limit was hit.
	current, err := db.GetRestaurant(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %d + %d exceeds %d", models.ErrInvalidQuantity, current.Boxes, delta, models.MaxBoxes)
}

// SetQuantity overwrites the box count.
func (db *DB) SetQuantity(ctx context.Context, id int64, value int) (*models.Restaurant, error) {
	if !validBoxes(value) {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidQuantity, value)
	}
	return db.getOne(ctx, "set boxes",
		`UPDATE restaurants SET boxes = ? WHERE id = ? RETURNING `+restaurantColumns,
		value, id)
}

func validBoxes(n int) bool {
	return n >= 0 && n <= models.MaxBoxes
}

// InsertRestaurant creates a restaurant. Names are not unique.
func (db *DB) InsertRestaurant(ctx context.Context, name string, lat, lon float64, boxes int) (*models.Restaurant, error) {
	name, err := models.NormalizeRestaurantName(name)
	if err != nil {
		return nil, err
	}
	if !validBoxes(boxes) {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidQuantity, boxes)
	}
	return db.getOne(ctx, "insert restaurant",
		`INSERT INTO restaurants (name, lat, lon, boxes) VALUES (?, ?, ?, ?) RETURNING `+restaurantColumns,
		name, lat, lon, boxes)
}

// DeleteRestaurant removes the restaurant and returns its name.
func (db *DB) DeleteRestaurant(ctx context.Context, id int64) (string, error) {
	var name string
	err := db.conn.GetContext(ctx, &name,
		db.conn.Rebind(`DELETE FROM restaurants WHERE id = ? RETURNING name`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete restaurant: %w", err)
	}
	return name, nil
}

func (db *DB) getOne(ctx context.Context, op, query string, args ...any) (*models.Restaurant, error) {
	var rest models.Restaurant
	err := db.conn.GetContext(ctx, &rest, db.conn.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return &rest, nil
}
