package models

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// NormalizeRestaurantName trims s and checks the 2-50 character rule.
func NormalizeRestaurantName(s string) (string, error) {
	name := strings.TrimSpace(s)
	rule := fmt.Sprintf("min=%d,max=%d", MinRestaurantName, MaxRestaurantName)
	if err := validatorInstance().Var(name, rule); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// ValidCoordinates reports whether lat/lon lie within WGS84 bounds.
func ValidCoordinates(lat, lon float64) bool {
	return validatorInstance().Var(lat, "latitude") == nil &&
		validatorInstance().Var(lon, "longitude") == nil
}
