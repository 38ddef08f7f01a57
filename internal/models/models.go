package models

import "unicode/utf8"

const (
	// DefaultBoxes is the box count a restaurant starts with.
	DefaultBoxes = 5

	// QuickAddBoxes is what the admin "add 5" button adds.
	QuickAddBoxes = 5

	// MaxBoxes bounds the stock of one restaurant.
	MaxBoxes = 100000

	// MaxDisplayName bounds what we store from the registration name step.
	MaxDisplayName = 200

	MinRestaurantName = 2
	MaxRestaurantName = 50
)

// User is a registered consumer, keyed by the Telegram user ID.
type User struct {
	ID    int64   `db:"id"`
	Name  string  `db:"name"`
	Phone string  `db:"phone"`
	Lat   float64 `db:"lat"`
	Lon   float64 `db:"lon"`
}

// Restaurant is a participating vendor and its remaining boxes.
type Restaurant struct {
	ID    int64   `db:"id"`
	Name  string  `db:"name"`
	Lat   float64 `db:"lat"`
	Lon   float64 `db:"lon"`
	Boxes int     `db:"boxes"`
}

// TruncateName cuts s to at most max runes.
func TruncateName(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
