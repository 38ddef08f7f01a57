package models

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnavailable     = errors.New("no boxes available")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidName     = errors.New("invalid restaurant name")
)
